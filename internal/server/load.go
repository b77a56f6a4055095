package server

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/san-kum/virtacc/internal/record"
)

// readCSV returns the rows of a header-keyed CSV as maps.
func readCSV(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(rows) < 1 {
		return nil, fmt.Errorf("read %s: missing header row", path)
	}
	header := rows[0]
	out := make([]map[string]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) != len(header) {
			return nil, fmt.Errorf("read %s: row has %d columns, header has %d", path, len(row), len(header))
		}
		m := make(map[string]string, len(header))
		for i, key := range header {
			m[key] = row[i]
		}
		out = append(out, m)
	}
	return out, nil
}

// parseValue accepts either a bare float or a bracketed waveform like
// "[1.5, 2.5, 3.5]".
func parseValue(raw string) (record.Value, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]") {
		inner := strings.TrimSpace(raw[1 : len(raw)-1])
		if inner == "" {
			return record.Value{}, nil
		}
		parts := strings.Split(inner, ",")
		v := make(record.Value, 0, len(parts))
		for _, p := range parts {
			f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return nil, fmt.Errorf("waveform sample %q: %w", p, err)
			}
			v = append(v, f)
		}
		return v, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}
	return record.Scalar(f), nil
}

// LoadLimits parses a PV limits CSV (columns: pv, upper, lower,
// precision) into the map New consumes via WithLimits.
func LoadLimits(path string) (map[string]Limits, error) {
	rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	limits := make(map[string]Limits, len(rows))
	for _, row := range rows {
		upper, err := strconv.ParseFloat(row["upper"], 64)
		if err != nil {
			return nil, fmt.Errorf("limits for %s: %w", row["pv"], err)
		}
		lower, err := strconv.ParseFloat(row["lower"], 64)
		if err != nil {
			return nil, fmt.Errorf("limits for %s: %w", row["pv"], err)
		}
		precision, err := strconv.Atoi(row["precision"])
		if err != nil {
			return nil, fmt.Errorf("limits for %s: %w", row["pv"], err)
		}
		limits[row["pv"]] = Limits{Upper: upper, Lower: lower, Precision: precision}
	}
	return limits, nil
}

// LoadFeedback creates the feedback records (columns: index, field, pv,
// value) addressed by SetFeedback. Index 0 means lattice-level.
func (s *Server) LoadFeedback(path string) error {
	rows, err := readCSV(path)
	if err != nil {
		return err
	}
	for _, row := range rows {
		index, err := strconv.Atoi(row["index"])
		if err != nil {
			return fmt.Errorf("feedback record %s: %w", row["pv"], err)
		}
		value, err := parseValue(row["value"])
		if err != nil {
			return fmt.Errorf("feedback record %s: %w", row["pv"], err)
		}
		s.mu.Lock()
		cell := s.newCell(row["pv"], value)
		s.feedback[feedbackKey{Index: index, Field: row["field"]}] = cell
		s.mu.Unlock()
	}
	s.logger.Info("feedback records created", "count", len(rows))
	return nil
}

// LoadMirrors builds the mirror graph from CSV rows (columns: type, in,
// out, output type, value). Inputs are space-separated PV names; names
// not served locally are reached through the gateway. Output type
// "caput" writes through the gateway, anything else creates a local
// record holding the initial value.
func (s *Server) LoadMirrors(path string) error {
	rows, err := readCSV(path)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := s.buildMirror(row); err != nil {
			return fmt.Errorf("mirror %s: %w", row["out"], err)
		}
	}
	s.logger.Info("mirror records created", "count", len(rows))
	return nil
}

func (s *Server) buildMirror(row map[string]string) error {
	ins := make([]record.Source, 0)
	for _, pv := range strings.Fields(row["in"]) {
		ins = append(ins, s.sourceFor(pv))
	}
	if len(ins) == 0 {
		return fmt.Errorf("no input points")
	}

	kind := record.Kind(strings.ToLower(row["type"]))
	if kind == record.Refresh {
		name := row["out"]
		m, err := record.NewRefresher(ins[0], func() error { return s.Refresh(name) })
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.mirrors = append(s.mirrors, m)
		s.mu.Unlock()
		return nil
	}

	initial, err := parseValue(row["value"])
	if err != nil {
		return err
	}
	out, err := s.setterFor(row["out"], strings.ToLower(row["output type"]), initial)
	if err != nil {
		return err
	}

	var m *record.Mirror
	switch kind {
	case record.Basic:
		m = record.NewBasic(ins[0], out)
	case "inverse":
		m, err = record.NewTransform(record.Inverse, ins[0], out)
	case record.Transform:
		fn, tErr := record.TransformByName(row["transform"])
		if tErr != nil {
			return tErr
		}
		m, err = record.NewTransform(fn, ins[0], out)
	case record.Summate:
		m, err = record.NewSummate(ins, out)
	case record.Collate:
		m, err = record.NewCollate(ins, out)
	default:
		return fmt.Errorf("unknown mirror type %q", row["type"])
	}
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.mirrors = append(s.mirrors, m)
	s.mu.Unlock()
	return nil
}

// sourceFor prefers a locally served record; unknown names become a
// gateway-backed get mask.
func (s *Server) sourceFor(pv string) record.Source {
	s.mu.Lock()
	r, ok := s.records[pv]
	s.mu.Unlock()
	if ok {
		return r
	}
	return record.NewGetMask(s.gw, pv)
}

func (s *Server) setterFor(pv, outputType string, initial record.Value) (record.Setter, error) {
	switch outputType {
	case "caput":
		return record.NewPutMask(s.gw, pv), nil
	case "ain", "longin", "waveform":
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, exists := s.records[pv]; exists {
			return nil, fmt.Errorf("record %q already exists", pv)
		}
		return s.newCell(pv, initial), nil
	}
	return nil, fmt.Errorf("unsupported output type %q", outputType)
}

// SetupTuneFeedback wires the offset chain from CSV rows (columns:
// setpoint, delta). Each external delta point is monitored; a change
// writes the new offset into a fresh offset record and forces one
// refresh of the named setpoint, which re-applies it with the offset
// added.
func (s *Server) SetupTuneFeedback(path string) error {
	rows, err := readCSV(path)
	if err != nil {
		return err
	}
	for _, row := range rows {
		spName := row["setpoint"]
		s.mu.Lock()
		_, known := s.outs[spName]
		s.mu.Unlock()
		if !known {
			return fmt.Errorf("tune feedback: %q is not a setpoint record", spName)
		}
		offset := record.NewCell(spName+":OFFSET", record.Scalar(0))
		mask := record.NewOffsetMask(offset, func() error { return s.Refresh(spName) })
		cancel, err := s.gw.Monitor(row["delta"], mask.Invoke)
		if err != nil {
			return fmt.Errorf("tune feedback: monitor %s: %w", row["delta"], err)
		}
		s.mu.Lock()
		s.records[offset.Name()] = offset
		s.offsets[spName] = offset
		s.monitors = append(s.monitors, cancel)
		s.mu.Unlock()
	}
	s.mu.Lock()
	s.tuneFeedback = true
	s.mu.Unlock()
	s.logger.Info("tune feedback active", "setpoints", len(rows))
	return nil
}
