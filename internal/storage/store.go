package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/san-kum/virtacc/internal/optics"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type SnapshotMetadata struct {
	ID            string     `json:"id"`
	Ring          string     `json:"ring"`
	Timestamp     time.Time  `json:"timestamp"`
	Version       uint64     `json:"version"`
	Energy        float64    `json:"energy"`
	Circumference float64    `json:"circumference"`
	Tune          [2]float64 `json:"tune"`
	Chromaticity  [2]float64 `json:"chromaticity"`
	Emittance     [2]float64 `json:"emittance,omitempty"`
	HasEmittance  bool       `json:"has_emittance"`
	RadInt        [5]float64 `json:"radiation_integrals"`
}

func (s *Store) Save(ring string, version uint64, energy, circumference float64, data *optics.Data) (string, error) {
	snapID := fmt.Sprintf("%s_%d", ring, time.Now().Unix())
	snapDir := filepath.Join(s.baseDir, snapID)

	if err := os.MkdirAll(snapDir, 0755); err != nil {
		return "", err
	}

	meta := SnapshotMetadata{
		ID:            snapID,
		Ring:          ring,
		Timestamp:     time.Now(),
		Version:       version,
		Energy:        energy,
		Circumference: circumference,
		Tune:          data.Tune,
		Chromaticity:  data.Chromaticity,
		HasEmittance:  data.HasEmittance,
		RadInt:        data.RadInt,
	}
	if data.HasEmittance {
		meta.Emittance = data.Emittance
	}

	metaPath := filepath.Join(snapDir, "metadata.json")
	metaFile, err := os.Create(metaPath)
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvPath := filepath.Join(snapDir, "optics.csv")
	csvFile, err := os.Create(csvPath)
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	w := csv.NewWriter(csvFile)
	defer w.Flush()

	header := []string{"s", "x", "px", "y", "py", "disp_x", "disp_y", "beta_x", "beta_y", "alpha_x", "alpha_y", "mu_x", "mu_y"}
	if err := w.Write(header); err != nil {
		return "", err
	}

	for i := range data.SPos {
		row := make([]string, 0, len(header))
		for _, val := range []float64{
			data.SPos[i],
			data.OrbitX[i], data.OrbitPX[i], data.OrbitY[i], data.OrbitPY[i],
			data.DispX[i], data.DispY[i],
			data.BetaX[i], data.BetaY[i],
			data.AlphaX[i], data.AlphaY[i],
			data.MuX[i], data.MuY[i],
		} {
			row = append(row, strconv.FormatFloat(val, 'g', -1, 64))
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}

	return snapID, nil
}

func (s *Store) List() ([]SnapshotMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []SnapshotMetadata{}, nil
		}
		return nil, err
	}

	snaps := make([]SnapshotMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		metaPath := filepath.Join(s.baseDir, entry.Name(), "metadata.json")
		data, err := os.ReadFile(metaPath)
		if err != nil {
			continue
		}

		var meta SnapshotMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}

		snaps = append(snaps, meta)
	}

	return snaps, nil
}

func (s *Store) Load(snapID string) (*SnapshotMetadata, error) {
	metaPath := filepath.Join(s.baseDir, snapID, "metadata.json")
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, err
	}

	var meta SnapshotMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	return &meta, nil
}

// LoadOptics returns the per-element columns keyed by header name, plus
// the s positions.
func (s *Store) LoadOptics(snapID string) (map[string][]float64, []float64, error) {
	csvPath := filepath.Join(s.baseDir, snapID, "optics.csv")
	file, err := os.Open(csvPath)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) < 2 {
		return map[string][]float64{}, []float64{}, nil
	}

	header := records[0]
	cols := make(map[string][]float64, len(header))
	for _, name := range header {
		cols[name] = make([]float64, 0, len(records)-1)
	}

	for i := 1; i < len(records); i++ {
		record := records[i]
		if len(record) != len(header) {
			continue
		}
		for j, cell := range record {
			val, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				continue
			}
			cols[header[j]] = append(cols[header[j]], val)
		}
	}

	return cols, cols["s"], nil
}
