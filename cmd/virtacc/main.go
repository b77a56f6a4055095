package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/virtacc/internal/config"
	"github.com/san-kum/virtacc/internal/engine"
	"github.com/san-kum/virtacc/internal/gateway"
	"github.com/san-kum/virtacc/internal/lattice"
	"github.com/san-kum/virtacc/internal/metrics"
	"github.com/san-kum/virtacc/internal/optics"
	"github.com/san-kum/virtacc/internal/server"
	"github.com/san-kum/virtacc/internal/source"
	"github.com/san-kum/virtacc/internal/storage"
	"github.com/san-kum/virtacc/internal/telemetry"
	"github.com/san-kum/virtacc/internal/tui"
	"github.com/spf13/cobra"
)

var (
	configFile  string
	preset      string
	dataDir     string
	ring        string
	prefix      string
	metricsAddr string
	plane       string
	column      string
	coupling    float64
	aperture    float64
	noEmit      bool
	verbose     bool
	waitFor     time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "virtacc",
		Short: "virtual accelerator control-network emulator",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLive(cmd, args)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().StringVar(&preset, "preset", "", "use preset configuration")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "", "snapshot directory")
	rootCmd.PersistentFlags().StringVar(&ring, "ring", "", "ring definition file, or 'demo'")
	rootCmd.PersistentFlags().Float64Var(&coupling, "coupling", -1, "vertical emittance coupling fraction")
	rootCmd.PersistentFlags().BoolVar(&noEmit, "no-emittance", false, "skip emittance computation")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "debug logging")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "serve the record layer",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&prefix, "prefix", "", "record name prefix")
	serveCmd.Flags().StringVar(&metricsAddr, "metrics", "", "metrics listen address")

	setCmd := &cobra.Command{
		Use:   "set [index] [field] [value]",
		Short: "apply one change and report the derived state",
		Args:  cobra.ExactArgs(3),
		RunE:  runSet,
	}
	setCmd.Flags().DurationVar(&waitFor, "wait", 0, "recompute wait timeout")

	derivedCmd := &cobra.Command{
		Use:   "derived [quantity]",
		Short: "print derived machine quantities",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runDerived,
	}

	orbitCmd := &cobra.Command{
		Use:   "orbit",
		Short: "plot the closed orbit",
		RunE:  runOrbit,
	}
	orbitCmd.Flags().StringVar(&plane, "plane", "x", "plane (x or y)")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "orbit and envelope statistics",
		RunE:  runStats,
	}
	statsCmd.Flags().Float64Var(&aperture, "aperture", 0.01, "half-aperture threshold in meters")

	fieldsCmd := &cobra.Command{
		Use:   "fields [index]",
		Short: "list an element's fields and values",
		Args:  cobra.ExactArgs(1),
		RunE:  runFields,
	}

	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "save the current derived state",
		RunE:  runSnapshot,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list snapshots",
		RunE:  listSnapshots,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [snapshot_id]",
		Short: "plot a saved snapshot column",
		Args:  cobra.ExactArgs(1),
		RunE:  plotSnapshot,
	}
	plotCmd.Flags().StringVar(&column, "column", "x", "optics column to plot")

	exportCmd := &cobra.Command{
		Use:   "export [snapshot_id]",
		Short: "export snapshot metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  exportSnapshot,
	}

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "live machine dashboard",
		RunE:  runLive,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, p := range config.ListPresets() {
				fmt.Println(p)
			}
			return nil
		},
	}

	configCmd := &cobra.Command{
		Use:   "config [path]",
		Short: "write a default config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.Save(args[0], config.DefaultConfig())
		},
	}

	rootCmd.AddCommand(serveCmd, setCmd, derivedCmd, orbitCmd, statsCmd, fieldsCmd, snapshotCmd, listCmd, plotCmd, exportCmd, liveCmd, presetsCmd, configCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		p := config.GetPreset(preset)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
		cfg = p
	}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	if cmd.Flags().Changed("ring") {
		cfg.Ring = ring
	}
	if cmd.Flags().Changed("data") {
		cfg.DataDir = dataDir
	}
	if cmd.Flags().Changed("coupling") {
		cfg.Coupling = coupling
	}
	if cmd.Flags().Changed("no-emittance") {
		cfg.DisableEmittance = noEmit
	}
	if cmd.Flags().Changed("prefix") {
		cfg.PVPrefix = prefix
	}
	if cmd.Flags().Changed("metrics") {
		cfg.MetricsAddr = metricsAddr
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return cfg, nil
}

func loadRing(cfg *config.Config) (*lattice.Lattice, error) {
	if cfg.Ring == "" || cfg.Ring == "demo" {
		return lattice.Demo(), nil
	}
	return lattice.Load(cfg.Ring)
}

func buildEngine(cfg *config.Config) (*engine.Engine, *lattice.Lattice, error) {
	lat, err := loadRing(cfg)
	if err != nil {
		return nil, nil, err
	}
	calc := optics.NewLinear()
	calc.DisableEmittance = cfg.DisableEmittance
	if cfg.Coupling >= 0 {
		calc.Coupling = cfg.Coupling
	}
	eng, err := engine.New(lat, calc)
	if err != nil {
		return nil, nil, err
	}
	return eng, lat, nil
}

func elementSources(eng *engine.Engine) ([]*source.ElementSource, error) {
	srcs := make([]*source.ElementSource, 0, eng.ElementCount())
	for i := 1; i <= eng.ElementCount(); i++ {
		el, err := eng.Element(i)
		if err != nil {
			return nil, err
		}
		fields := source.DefaultFields(el.Kind)
		if len(fields) == 0 {
			continue
		}
		src, err := source.NewElement(eng, i, fields)
		if err != nil {
			return nil, err
		}
		srcs = append(srcs, src)
	}
	return srcs, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	eng, lat, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	srcs, err := elementSources(eng)
	if err != nil {
		return err
	}
	for _, src := range srcs {
		src.SetTimeout(cfg.WaitTimeout)
	}

	gw := gateway.NewLoopback()
	opts := []server.Option{}
	if cfg.Wiring.LimitsCSV != "" {
		limits, err := server.LoadLimits(cfg.Wiring.LimitsCSV)
		if err != nil {
			return err
		}
		opts = append(opts, server.WithLimits(limits))
	}

	srv, err := server.New(cfg.PVPrefix, eng, srcs, source.NewLattice(eng), gw, opts...)
	if err != nil {
		return err
	}
	eng.SetUpdateCallback(srv.UpdatePVs)

	if cfg.Wiring.FeedbackCSV != "" {
		if err := srv.LoadFeedback(cfg.Wiring.FeedbackCSV); err != nil {
			return err
		}
	}
	if cfg.Wiring.MirrorsCSV != "" {
		if err := srv.LoadMirrors(cfg.Wiring.MirrorsCSV); err != nil {
			return err
		}
	}
	if cfg.Wiring.TuneFBCSV != "" {
		if err := srv.SetupTuneFeedback(cfg.Wiring.TuneFBCSV); err != nil {
			return err
		}
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", telemetry.Handler())
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				slog.Error("metrics listener stopped", "err", err)
			}
		}()
	}

	slog.Info("serving", "ring", lat.Name, "records", len(srv.RecordNames()),
		"elements", eng.ElementCount(), "prefix", cfg.PVPrefix)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	srv.StopMonitoring()
	slog.Info("shutting down")
	return nil
}

func runSet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	index, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("bad index %q: %w", args[0], err)
	}
	value, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return fmt.Errorf("bad value %q: %w", args[2], err)
	}

	eng, _, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	el, err := eng.Element(index)
	if err != nil {
		return err
	}
	src, err := source.NewElement(eng, index, source.DefaultFields(el.Kind))
	if err != nil {
		return err
	}
	if err := src.SetValue(args[1], value); err != nil {
		return err
	}

	timeout := cfg.WaitTimeout
	if waitFor > 0 {
		timeout = waitFor
	}
	if !eng.Wait(timeout) {
		return fmt.Errorf("recompute did not finish within %v", timeout)
	}
	return printDerived(eng)
}

func runDerived(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	eng, _, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()
	if len(args) == 1 {
		return printQuantity(eng, args[0])
	}
	return printDerived(eng)
}

func printQuantity(eng *engine.Engine, name string) error {
	switch name {
	case "tune":
		q := eng.Tunes()
		fmt.Printf("%.6f %.6f\n", q[0], q[1])
	case "chromaticity":
		c := eng.Chromaticities()
		fmt.Printf("%.4f %.4f\n", c[0], c[1])
	case "emittance":
		em, err := eng.Emittances()
		if err != nil {
			return err
		}
		fmt.Printf("%.4e %.4e\n", em[0], em[1])
	case "energy":
		fmt.Printf("%.6g\n", eng.Energy())
	case "circumference":
		fmt.Printf("%.6g\n", eng.Circumference())
	case "momentum_compaction":
		fmt.Printf("%.6e\n", eng.MomentumCompaction())
	case "energy_spread":
		fmt.Printf("%.6e\n", eng.EnergySpread())
	case "energy_loss":
		fmt.Printf("%.6g\n", eng.EnergyLoss())
	default:
		return fmt.Errorf("unknown quantity %q (try: tune, chromaticity, emittance, energy, circumference, momentum_compaction, energy_spread, energy_loss)", name)
	}
	return nil
}

func printDerived(eng *engine.Engine) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	tunes := eng.Tunes()
	chroma := eng.Chromaticities()
	fmt.Fprintf(w, "tune\t%.6f\t%.6f\n", tunes[0], tunes[1])
	fmt.Fprintf(w, "chromaticity\t%.4f\t%.4f\n", chroma[0], chroma[1])
	if em, err := eng.Emittances(); err == nil {
		fmt.Fprintf(w, "emittance\t%.4e\t%.4e\n", em[0], em[1])
		fmt.Fprintf(w, "energy spread\t%.4e\n", eng.EnergySpread())
		fmt.Fprintf(w, "energy loss/turn\t%.4f keV\n", eng.EnergyLoss()/1e3)
	}
	fmt.Fprintf(w, "momentum compaction\t%.4e\n", eng.MomentumCompaction())
	fmt.Fprintf(w, "energy\t%.3f GeV\n", eng.Energy()/1e9)
	fmt.Fprintf(w, "circumference\t%.3f m\n", eng.Circumference())
	fmt.Fprintf(w, "total bend angle\t%.2f deg\n", eng.TotalBendAngle())
	return w.Flush()
}

func runOrbit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	eng, lat, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	orbit, err := eng.Orbit(plane)
	if err != nil {
		return err
	}
	for i := range orbit {
		orbit[i] *= 1e3
	}
	fmt.Printf("ring: %s\n\n", lat.Name)
	graph := asciigraph.Plot(orbit,
		asciigraph.Height(12),
		asciigraph.Width(80),
		asciigraph.Caption(fmt.Sprintf("closed orbit %s (mm)", plane)),
	)
	fmt.Println(graph)
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	eng, lat, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	data := eng.Snapshot()
	orbit := metrics.Orbit(data)
	beta := metrics.Beta(data)
	exc := metrics.NewExcursion(aperture)
	exc.Observe(data)

	fmt.Printf("ring: %s\n\n", lat.Name)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "orbit rms\t%.4g mm\t%.4g mm\n", orbit.RMSX*1e3, orbit.RMSY*1e3)
	fmt.Fprintf(w, "orbit peak\t%.4g mm @ s=%.2f\t%.4g mm @ s=%.2f\n",
		orbit.PeakX*1e3, orbit.PeakXPos, orbit.PeakY*1e3, orbit.PeakYPos)
	fmt.Fprintf(w, "max beta\t%.3f m\t%.3f m\n", beta.MaxBetaX, beta.MaxBetaY)
	fmt.Fprintf(w, "max dispersion\t%.4f m\n", beta.MaxDispX)
	fmt.Fprintf(w, "inside aperture\t%.1f%%\t(%d violations)\n", exc.Value()*100, exc.Violations())
	fmt.Fprintf(w, "corrector effort\t%.4g rad\n", metrics.CorrectorEffort(eng.Lattice()))
	return w.Flush()
}

func runFields(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	index, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("bad index %q: %w", args[0], err)
	}
	eng, _, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	el, err := eng.Element(index)
	if err != nil {
		return err
	}
	src, err := source.NewElement(eng, index, source.DefaultFields(el.Kind))
	if err != nil {
		return err
	}

	fmt.Printf("%s (%s, %s, %.3f m)\n\n", el.Name, el.Family, el.Kind, el.Length)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, field := range src.Fields() {
		value, err := src.Value(field)
		if err != nil {
			fmt.Fprintf(w, "%s\terror: %v\n", field, err)
			continue
		}
		mode := "rw"
		if !src.Writable(field) {
			mode = "ro"
		}
		fmt.Fprintf(w, "%s\t%.6g\t%s\n", field, value, mode)
	}
	return w.Flush()
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	eng, lat, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	st := storage.New(cfg.DataDir)
	if err := st.Init(); err != nil {
		return err
	}
	id, err := st.Save(lat.Name, eng.Version(), eng.Energy(), eng.Circumference(), eng.Snapshot())
	if err != nil {
		return err
	}
	fmt.Printf("snapshot id: %s\n", id)
	return nil
}

func listSnapshots(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	snaps, err := storage.New(cfg.DataDir).List()
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		fmt.Println("no snapshots found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tRING\tTIME\tTUNE_X\tTUNE_Y\tCHROM_X\tCHROM_Y")
	for _, s := range snaps {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.4f\t%.4f\t%.3f\t%.3f\n",
			s.ID,
			s.Ring,
			s.Timestamp.Format("2006-01-02 15:04:05"),
			s.Tune[0], s.Tune[1],
			s.Chromaticity[0], s.Chromaticity[1],
		)
	}
	return w.Flush()
}

func plotSnapshot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st := storage.New(cfg.DataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	cols, _, err := st.LoadOptics(args[0])
	if err != nil {
		return err
	}
	data, ok := cols[column]
	if !ok || len(data) == 0 {
		return fmt.Errorf("no column %q in snapshot (have: beta_x, beta_y, x, y, disp_x, ...)", column)
	}

	fmt.Printf("snapshot: %s\nring: %s\n\n", meta.ID, meta.Ring)
	graph := asciigraph.Plot(data,
		asciigraph.Height(12),
		asciigraph.Width(80),
		asciigraph.Caption(fmt.Sprintf("%s along the ring", column)),
	)
	fmt.Println(graph)
	return nil
}

func exportSnapshot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	meta, err := storage.New(cfg.DataDir).Load(args[0])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	eng, lat, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	m := tui.NewLiveApp(eng, lat.Name)
	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		return err
	}
	return nil
}
