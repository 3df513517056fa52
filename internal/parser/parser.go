// Package parser turns a scenario's statistics log into a TimeSeriesRecord.
//
// One line is one snapshot taken at the end of a sampling interval:
//
//	ts=2025-06-01T10:00:01Z p0.rx_packets=10 p0.tx_packets=12 p0.rx_dropped=0 p0.tx_dropped=0 p0.latency_ms=2.1 ...
//
// ts is RFC 3339, unix seconds or another unambiguous date-time without
// spaces (zone-less values are UTC). Every configured port must report the four
// packet counters; latency_ms is optional. A "# counters: delta" line before the
// first sample marks the counters as per-interval counts instead of running
// totals; later directives are ignored. Other lines starting with '#' and
// blank lines are ignored, and lines over 1 MiB are skipped as malformed.
package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/saveenergy/cbsreport/internal/logging"
	reporterrors "github.com/saveenergy/cbsreport/pkg/errors"
	"github.com/saveenergy/cbsreport/pkg/types"
)

const (
	DefaultInterval = time.Second
	maxLineBytes    = 1024 * 1024
	directivePrefix = "counters:"
)

// ErrNotFound matches, via errors.Is, the error returned for a missing log.
var ErrNotFound error = &reporterrors.ReportError{Code: reporterrors.ErrCodeMissingLogFile}

const (
	fieldRxPackets = iota
	fieldTxPackets
	fieldRxDropped
	fieldTxDropped
	counterFields
)

var fieldNames = [counterFields]string{"rx_packets", "tx_packets", "rx_dropped", "tx_dropped"}

var counterNames = map[string]int{
	"rx_packets": fieldRxPackets,
	"tx_packets": fieldTxPackets,
	"rx_dropped": fieldRxDropped,
	"tx_dropped": fieldTxDropped,
}

type Parser struct {
	Interval time.Duration
	Ports    []int
}

func New(interval time.Duration, ports []int) *Parser {
	if interval <= 0 {
		interval = DefaultInterval
	}
	p := &Parser{
		Interval: interval,
		Ports:    make([]int, len(ports)),
	}
	copy(p.Ports, ports)
	return p
}

// Parse reads the log at path. A missing file yields ErrNotFound and a nil
// record; an empty or unparseable file yields a record with no samples.
func (p *Parser) Parse(path string) (*types.TimeSeriesRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, reporterrors.ErrMissingLogFile(path, err)
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	rec, err := p.ParseReader(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	rec.Source = path
	return rec, nil
}

type portSnapshot struct {
	counters [counterFields]uint64
	seen     [counterFields]bool
	latency  float64
	hasLat   bool
}

func (p *Parser) ParseReader(r io.Reader) (*types.TimeSeriesRecord, error) {
	rec := types.NewTimeSeriesRecord(p.Interval, p.Ports)

	wanted := make(map[int]int, len(p.Ports))
	for i, port := range p.Ports {
		wanted[port] = i
	}
	snap := make([]portSnapshot, len(p.Ports))

	br := bufio.NewReaderSize(r, 64*1024)
	lineNo := 0
	for {
		raw, tooLong, readErr := readLine(br)
		if tooLong || len(raw) > 0 {
			lineNo++
			if tooLong {
				rec.Skipped++
				logging.Debug("skipping malformed record",
					logging.Err(reporterrors.ErrMalformedRecord(lineNo,
						fmt.Sprintf("line exceeds %d bytes", maxLineBytes))))
			} else {
				p.consume(rec, strings.TrimSpace(string(raw)), lineNo, wanted, snap)
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return nil, readErr
		}
	}
	return rec, nil
}

func (p *Parser) consume(rec *types.TimeSeriesRecord, line string, lineNo int, wanted map[int]int, snap []portSnapshot) {
	if line == "" {
		return
	}
	if strings.HasPrefix(line, "#") {
		mode, ok := parseDirective(line)
		if !ok {
			return
		}
		if rec.Len() > 0 {
			logging.Warn("ignoring counter mode directive after first sample",
				logging.Field{Key: "line", Value: lineNo},
				logging.Field{Key: "mode", Value: string(mode)})
			return
		}
		rec.Mode = mode
		return
	}

	for i := range snap {
		snap[i] = portSnapshot{}
	}
	ts, err := parseLine(line, wanted, snap)
	if err != nil {
		rec.Skipped++
		logging.Debug("skipping malformed record",
			logging.Err(reporterrors.ErrMalformedRecord(lineNo, err.Error())))
		return
	}

	rec.Timestamps = append(rec.Timestamps, ts)
	for i, port := range p.Ports {
		s := rec.Ports[port]
		s.RxPackets = append(s.RxPackets, snap[i].counters[fieldRxPackets])
		s.TxPackets = append(s.TxPackets, snap[i].counters[fieldTxPackets])
		s.RxDropped = append(s.RxDropped, snap[i].counters[fieldRxDropped])
		s.TxDropped = append(s.TxDropped, snap[i].counters[fieldTxDropped])
		if snap[i].hasLat {
			s.LatencyMs = append(s.LatencyMs, snap[i].latency)
		}
	}
}

// readLine returns the next line including its newline. A line longer than
// maxLineBytes is drained up to the next newline and reported as tooLong.
func readLine(br *bufio.Reader) ([]byte, bool, error) {
	var line []byte
	for {
		chunk, err := br.ReadSlice('\n')
		if len(line)+len(chunk) > maxLineBytes {
			for errors.Is(err, bufio.ErrBufferFull) {
				_, err = br.ReadSlice('\n')
			}
			return nil, true, err
		}
		line = append(line, chunk...)
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return line, false, err
	}
}

func parseDirective(line string) (types.CounterMode, bool) {
	body := strings.TrimSpace(strings.TrimPrefix(line, "#"))
	if !strings.HasPrefix(strings.ToLower(body), directivePrefix) {
		return "", false
	}
	switch types.CounterMode(strings.ToLower(strings.TrimSpace(body[len(directivePrefix):]))) {
	case types.CountersDelta:
		return types.CountersDelta, true
	case types.CountersCumulative:
		return types.CountersCumulative, true
	}
	return "", false
}

func parseLine(line string, wanted map[int]int, snap []portSnapshot) (time.Time, error) {
	var ts time.Time
	hasTS := false

	for _, tok := range strings.Fields(line) {
		key, value, ok := strings.Cut(tok, "=")
		if !ok {
			return time.Time{}, fmt.Errorf("token %q is not key=value", tok)
		}
		if key == "ts" {
			t, err := parseTimestamp(value)
			if err != nil {
				return time.Time{}, err
			}
			ts, hasTS = t, true
			continue
		}

		port, field, ok := splitPortKey(key)
		if !ok {
			continue
		}
		slot, ok := wanted[port]
		if !ok {
			continue
		}

		if field == "latency_ms" {
			v, err := strconv.ParseFloat(value, 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
				logging.Debug("dropping latency sample", logging.Field{Key: "value", Value: value})
				continue
			}
			snap[slot].latency, snap[slot].hasLat = v, true
			continue
		}

		idx, ok := counterNames[field]
		if !ok {
			continue
		}
		v, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("p%d.%s: %w", port, field, err)
		}
		snap[slot].counters[idx] = v
		snap[slot].seen[idx] = true
	}

	if !hasTS {
		return time.Time{}, fmt.Errorf("missing ts")
	}
	for port, slot := range wanted {
		for idx, seen := range snap[slot].seen {
			if !seen {
				return time.Time{}, fmt.Errorf("port %d missing %s", port, fieldNames[idx])
			}
		}
	}
	return ts, nil
}

// splitPortKey splits "p3.tx_packets" into 3 and "tx_packets".
func splitPortKey(key string) (int, string, bool) {
	if len(key) < 4 || key[0] != 'p' {
		return 0, "", false
	}
	idx, field, ok := strings.Cut(key[1:], ".")
	if !ok || field == "" {
		return 0, "", false
	}
	port, err := strconv.Atoi(idx)
	if err != nil || port < 0 {
		return 0, "", false
	}
	return port, field, true
}

func parseTimestamp(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t, nil
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if math.IsNaN(secs) || math.IsInf(secs, 0) || secs < 0 {
			return time.Time{}, fmt.Errorf("invalid ts %q", v)
		}
		whole := math.Floor(secs)
		return time.Unix(int64(whole), int64((secs-whole)*float64(time.Second))).UTC(), nil
	}
	// Zone-less stamps are taken as UTC.
	t, err := dateparse.ParseIn(v, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid ts %q", v)
	}
	return t, nil
}
