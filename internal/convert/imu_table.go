// Package convert turns raw recordings (an IMU text table and stereo image
// folders) into a container the dataset readers can consume.
package convert

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/HarborC/kalibrlib/internal/models"
)

// imuColumns is the minimum column count of a table row:
// timestamp, ax, ay, az, gx, gy, gz, qw, qx, qy, qz.
const imuColumns = 11

// ImuRow is one parsed line of an IMU table.
type ImuRow struct {
	Stamp              int64 // ns
	LinearAcceleration models.Vector3
	AngularVelocity    models.Vector3
	Orientation        models.Quaternion
}

// Msg builds the wire message for the row.
func (r ImuRow) Msg(seq uint32) *models.ImuMsg {
	return &models.ImuMsg{
		Header:             models.Header{Seq: seq, Stamp: models.StampFromNanos(r.Stamp), FrameID: "imu"},
		Orientation:        r.Orientation,
		AngularVelocity:    r.AngularVelocity,
		LinearAcceleration: r.LinearAcceleration,
	}
}

// ReadImuTable parses a comma separated IMU table. The first line is a
// header and is always skipped. Rows that are short or hold a bad number
// are returned as ParseErrors; only I/O failures are fatal.
func ReadImuTable(path string) ([]ImuRow, []*models.ParseError, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	rows := make([]ImuRow, 0)
	parseErrors := make([]*models.ParseError, 0)

	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if lineNum == 1 {
			continue
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		row, err := parseImuRow(line)
		if err != nil {
			parseErrors = append(parseErrors, &models.ParseError{Line: lineNum, Content: line, Reason: err.Error()})
			continue
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	return rows, parseErrors, nil
}

func parseImuRow(line string) (ImuRow, error) {
	parts := strings.Split(strings.TrimSpace(line), ",")
	if len(parts) < imuColumns {
		return ImuRow{}, fmt.Errorf("expected %d columns, got %d", imuColumns, len(parts))
	}

	ts, err := ParseSeconds(parts[0])
	if err != nil {
		return ImuRow{}, fmt.Errorf("invalid timestamp: %w", err)
	}

	var v [imuColumns - 1]float64
	for i := range v {
		f, err := strconv.ParseFloat(strings.TrimSpace(parts[i+1]), 64)
		if err != nil {
			return ImuRow{}, fmt.Errorf("invalid value in column %d", i+2)
		}
		v[i] = f
	}

	return ImuRow{
		Stamp:              ts,
		LinearAcceleration: models.Vector3{X: v[0], Y: v[1], Z: v[2]},
		AngularVelocity:    models.Vector3{X: v[3], Y: v[4], Z: v[5]},
		Orientation:        models.Quaternion{W: v[6], X: v[7], Y: v[8], Z: v[9]},
	}, nil
}

const maxSeconds = math.MaxInt64 / 1_000_000_000

var errSeconds = errors.New("not a decimal number of seconds")

// ParseSeconds converts a decimal seconds string to nanoseconds without
// going through float64, so "1700000000.123456789" keeps every digit.
// Digits past the ninth decimal are truncated. Exponent forms fall back to
// float parsing.
func ParseSeconds(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if strings.ContainsAny(s, "eE") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) >= maxSeconds {
			return 0, errSeconds
		}
		return int64(f * 1e9), nil
	}

	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return 0, errSeconds
	}
	if !digitsOnly(whole) || !digitsOnly(frac) {
		return 0, errSeconds
	}

	var sec int64
	if whole != "" {
		v, err := strconv.ParseInt(whole, 10, 64)
		if err != nil || v >= maxSeconds {
			return 0, errSeconds
		}
		sec = v
	}

	if len(frac) > 9 {
		frac = frac[:9]
	}
	var nsec int64
	if frac != "" {
		v, err := strconv.ParseInt(frac+strings.Repeat("0", 9-len(frac)), 10, 64)
		if err != nil {
			return 0, errSeconds
		}
		nsec = v
	}

	ns := sec*1e9 + nsec
	if neg {
		ns = -ns
	}
	return ns, nil
}

func digitsOnly(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
