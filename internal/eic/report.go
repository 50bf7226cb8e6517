package eic

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/524D/diafeature/internal/output"
	"github.com/524D/diafeature/internal/swath"
)

// ChannelReport is the EIC report section of one channel
type ChannelReport struct {
	Label          string
	RetentionTimes []float64
	EICs           []EIC
}

// WriteReport writes the EIC report section of a channel: a
// "scan <label>" header, the tab separated distinct retention times,
// then per window one "rt mz intensity" line per retention time and a
// "-" line. The section ends with an empty line.
func WriteReport(w io.StringWriter, c *swath.Channel, windows []Window) error {
	var sb strings.Builder
	sb.WriteString("scan " + c.Label + "\n")
	for i, rt := range RetentionTimes(c) {
		if i > 0 {
			sb.WriteByte('\t')
		}
		sb.WriteString(output.Float(rt))
	}
	sb.WriteByte('\n')
	for _, win := range windows {
		for _, e := range win.EIC {
			sb.WriteString(output.Float(e.RT))
			sb.WriteByte('\t')
			sb.WriteString(output.Float(e.Mz))
			sb.WriteByte('\t')
			sb.WriteString(output.Float(e.I))
			sb.WriteByte('\n')
		}
		sb.WriteString("-\n")
		if sb.Len() > 1<<16 {
			if _, err := w.WriteString(sb.String()); err != nil {
				return err
			}
			sb.Reset()
		}
	}
	sb.WriteByte('\n')
	_, err := w.WriteString(sb.String())
	return err
}

// ReadReport parses an EIC report written by WriteReport
func ReadReport(r io.Reader) ([]ChannelReport, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<28)

	var reports []ChannelReport
	var cur *ChannelReport
	var eic EIC
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		switch {
		case cur == nil:
			if line == "" {
				continue
			}
			label, ok := strings.CutPrefix(line, "scan ")
			if !ok {
				return nil, fmt.Errorf("line %d: expected channel header, got %q", lineNum, line)
			}
			reports = append(reports, ChannelReport{Label: label})
			cur = &reports[len(reports)-1]
			// The retention time line always follows the header
			if !scanner.Scan() {
				return nil, fmt.Errorf("line %d: missing retention time line", lineNum)
			}
			lineNum++
			rts, err := parseFloats(strings.Split(scanner.Text(), "\t"))
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNum, err)
			}
			cur.RetentionTimes = rts
		case line == "":
			if len(eic) > 0 {
				return nil, fmt.Errorf("line %d: EIC not terminated by '-'", lineNum)
			}
			cur = nil
		case line == "-":
			cur.EICs = append(cur.EICs, eic)
			eic = nil
		default:
			fields := strings.Split(line, "\t")
			if len(fields) != 3 {
				return nil, fmt.Errorf("line %d: expected 3 fields, got %d", lineNum, len(fields))
			}
			v, err := parseFloats(fields)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNum, err)
			}
			eic = append(eic, Entry{RT: v[0], Mz: v[1], I: v[2]})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if cur != nil {
		return nil, fmt.Errorf("channel %s not terminated by an empty line", cur.Label)
	}
	return reports, nil
}

// ReadReportFile reads the EIC report at path
func ReadReportFile(path string) ([]ChannelReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadReport(f)
}

func parseFloats(fields []string) ([]float64, error) {
	values := make([]float64, 0, len(fields))
	for _, s := range fields {
		if s == "" {
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}
