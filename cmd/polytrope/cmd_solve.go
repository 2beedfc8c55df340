package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"polytrope/internal/config"
	"polytrope/internal/logging"
	"polytrope/internal/oracle"
	"polytrope/internal/resolver"
	"polytrope/internal/rules"
	"polytrope/internal/store"
	"polytrope/internal/substance"
	"polytrope/internal/thermo"
)

var (
	solveSubstance string
	solveState1    string
	solveProcess   string
	solveExponent  float64
	solvePin       string
	solveCp        float64
	solveCv        float64
)

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Resolve state 2 for one pinned edit and print the energy balance",
	Long: `Fixes state 1 from two independent properties, freezes the process
constraint, applies one settle edit, and prints the resolved state 2 with the
process work and heat. The run is recorded in the session store.

Properties are written as name=value pairs (t, p, v, x, u, h, s).

Examples:
  polytrope solve --substance air --state1 p=100,v=0.5 --process isobaric --pin v=1.0
  polytrope solve --substance water --state1 t=150,x=0.5 --process isobaric --pin t=200
  polytrope solve --substance air --state1 t=300,p=100 --process polytropic -n 1.3 --pin v=0.43`,
	RunE: runSolve,
}

var envelopeCmd = &cobra.Command{
	Use:   "envelope",
	Short: "Print the saturation envelope at a temperature or pressure",
	Long: `Fetches the water saturation envelope at the given axis value and prints
the boundary properties (vf, vg, uf, ug, hf, hfg, sf, sg).

Example:
  polytrope envelope --at t=150`,
	RunE: runEnvelope,
}

var gasesCmd = &cobra.Command{
	Use:   "gases",
	Short: "List the predefined ideal gases",
	RunE:  runGases,
}

var envelopeAt string

func init() {
	solveCmd.Flags().StringVar(&solveSubstance, "substance", "water", "substance: water, a predefined gas, or custom")
	solveCmd.Flags().StringVar(&solveState1, "state1", "", "state 1 as two name=value pairs, comma separated")
	solveCmd.Flags().StringVar(&solveProcess, "process", "", "process: isobaric, isothermal, isochoric, adiabatic, polytropic")
	solveCmd.Flags().Float64VarP(&solveExponent, "exponent", "n", 0, "polytropic exponent")
	solveCmd.Flags().StringVar(&solvePin, "pin", "", "the settle edit as one name=value pair")
	solveCmd.Flags().Float64Var(&solveCp, "cp", 0, "custom gas cp in kJ/(kg K)")
	solveCmd.Flags().Float64Var(&solveCv, "cv", 0, "custom gas cv in kJ/(kg K)")
	solveCmd.MarkFlagRequired("state1")
	solveCmd.MarkFlagRequired("process")
	solveCmd.MarkFlagRequired("pin")

	envelopeCmd.Flags().StringVar(&envelopeAt, "at", "", "axis as t=<degC> or p=<bar>")
	envelopeCmd.MarkFlagRequired("at")
}

// parseProperty parses one "name=value" pair.
func parseProperty(s string) (thermo.Property, error) {
	name, raw, found := strings.Cut(strings.TrimSpace(s), "=")
	if !found {
		return thermo.Property{}, fmt.Errorf("expected name=value, got %q", s)
	}
	kind, err := thermo.ParseQuantity(name)
	if err != nil {
		return thermo.Property{}, err
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return thermo.Property{}, fmt.Errorf("invalid value for %s: %w", kind, err)
	}
	return thermo.Property{Kind: kind, Value: value}, nil
}

// parsePropertyPair parses "a=1,b=2" into two independent properties.
func parsePropertyPair(s string) (thermo.Property, thermo.Property, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return thermo.Property{}, thermo.Property{}, fmt.Errorf("expected two name=value pairs, got %q", s)
	}
	a, err := parseProperty(parts[0])
	if err != nil {
		return thermo.Property{}, thermo.Property{}, err
	}
	b, err := parseProperty(parts[1])
	if err != nil {
		return thermo.Property{}, thermo.Property{}, err
	}
	if a.Kind == b.Kind {
		return thermo.Property{}, thermo.Property{}, fmt.Errorf("state 1 needs two distinct properties")
	}
	return a, b, nil
}

// buildOracle constructs the property oracle per configuration.
func buildOracle(cfg *config.Config) (oracle.Client, error) {
	if cfg.Oracle.Mode == "http" {
		timeout, _ := cfg.Oracle.GetTimeout()
		interval, _ := cfg.Oracle.GetMinInterval()
		return oracle.NewHTTPClient(oracle.HTTPConfig{
			BaseURL:       cfg.Oracle.BaseURL,
			Timeout:       timeout,
			MaxConcurrent: cfg.Oracle.MaxConcurrent,
			MinInterval:   interval,
			Logger:        logger,
		}), nil
	}
	if cfg.Oracle.TablePath != "" {
		return oracle.NewTableFromFile(cfg.Oracle.TablePath)
	}
	return oracle.NewTable()
}

// buildSubstance resolves the --substance flag into a Substance.
func buildSubstance(name string, client oracle.Client) (substance.Substance, error) {
	switch strings.ToLower(name) {
	case "water", "steam":
		return substance.NewPure("water", client), nil
	case "custom":
		return substance.NewCustomGas("custom", solveCp, solveCv)
	default:
		return substance.NewIdealGas(name)
	}
}

func runSolve(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := logging.Initialize("."); err != nil {
		logger.Warn("file logging unavailable", zap.Error(err))
	}
	defer logging.CloseAll()

	client, err := buildOracle(cfg)
	if err != nil {
		return err
	}
	sub, err := buildSubstance(solveSubstance, client)
	if err != nil {
		return err
	}

	kind, err := thermo.ParseProcessKind(solveProcess)
	if err != nil {
		return err
	}
	a, b, err := parsePropertyPair(solveState1)
	if err != nil {
		return err
	}
	pin, err := parseProperty(solvePin)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	state1, err := sub.Lookup(ctx, a, b)
	if err != nil {
		return fmt.Errorf("cannot fix state 1: %w", err)
	}

	plan, err := rules.NewKernel()
	if err != nil {
		return err
	}
	classifier := substance.NewClassifier(cfg.Tolerance.TemperatureBand, cfg.Tolerance.PressureBand)
	session := resolver.NewSession(sub, plan, classifier, state1)
	if err := session.SelectProcess(kind, solveExponent); err != nil {
		return err
	}

	settle, _ := cfg.Arbiter.GetSettleInterval()
	timeout, _ := cfg.Arbiter.GetResolveTimeout()
	arbiter := resolver.NewEditArbiter(session, settle, timeout)
	defer arbiter.Stop()

	res, err := arbiter.Submit(ctx, pin.Kind, pin.Value)
	if err != nil {
		return fmt.Errorf("resolution failed: %w", err)
	}

	db, err := store.NewSessionStore(cfg.Store.DatabasePath)
	if err != nil {
		logger.Warn("session store unavailable", zap.Error(err))
	} else {
		defer db.Close()
		if err := db.SaveSession(session.ID, sub.Name(), kind, state1); err != nil {
			logger.Warn("failed to record session", zap.Error(err))
		} else if err := db.SaveResolution(session.ID, thermo.EditEvent{Field: pin.Kind, Value: pin.Value, Seq: res.Seq}, res); err != nil {
			logger.Warn("failed to record resolution", zap.Error(err))
		}
	}

	printState("State 1", state1)
	printState("State 2", res.State)
	fmt.Printf("\nEnergy balance (%s):\n", session.Constraint())
	fmt.Printf("  W  = %10.4f kJ/kg\n", res.Energy.W)
	fmt.Printf("  Q  = %10.4f kJ/kg\n", res.Energy.Q)
	fmt.Printf("  du = %10.4f kJ/kg\n", res.Energy.DeltaU)
	fmt.Printf("  dh = %10.4f kJ/kg\n", res.Energy.DeltaH)
	fmt.Printf("  ds = %10.6f kJ/(kg K)\n", res.Energy.DeltaS)
	fmt.Printf("\nSession %s\n", session.ID)
	return nil
}

func printState(label string, sv thermo.StateVector) {
	fmt.Printf("%s (%s):\n", label, sv.Phase)
	fmt.Printf("  T = %10.4f\n", sv.T)
	fmt.Printf("  P = %10.4f\n", sv.P)
	fmt.Printf("  v = %10.6f\n", sv.V)
	fmt.Printf("  u = %10.4f\n", sv.U)
	fmt.Printf("  h = %10.4f\n", sv.H)
	fmt.Printf("  s = %10.6f\n", sv.S)
	if sv.Phase == thermo.PhaseSaturated {
		fmt.Printf("  x = %10.4f\n", sv.X)
	}
}

func runEnvelope(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	client, err := buildOracle(cfg)
	if err != nil {
		return err
	}
	axis, err := parseProperty(envelopeAt)
	if err != nil {
		return err
	}
	if axis.Kind != thermo.QuantityTemperature && axis.Kind != thermo.QuantityPressure {
		return fmt.Errorf("envelope axis must be t or p")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	env, err := client.SaturationAt(ctx, axis)
	if err != nil {
		return err
	}

	fmt.Printf("Saturation envelope at %s:\n", axis)
	fmt.Printf("  Tsat = %10.4f degC\n", env.Tsat)
	fmt.Printf("  Psat = %10.4f bar\n", env.Psat)
	fmt.Printf("  vf   = %10.6f m3/kg    vg  = %10.6f m3/kg\n", env.Vf, env.Vg)
	fmt.Printf("  uf   = %10.4f kJ/kg    ug  = %10.4f kJ/kg\n", env.Uf, env.Ug)
	fmt.Printf("  hf   = %10.4f kJ/kg    hfg = %10.4f kJ/kg\n", env.Hf, env.Hfg)
	fmt.Printf("  sf   = %10.6f kJ/(kg K) sg = %10.6f kJ/(kg K)\n", env.Sf, env.Sg)
	return nil
}

func runGases(cmd *cobra.Command, args []string) error {
	for _, name := range substance.PredefinedGasNames() {
		gas, err := substance.NewIdealGas(name)
		if err != nil {
			return err
		}
		fmt.Printf("%-10s R=%.4f kJ/(kg K)  k=%.3f  cp=%.4f  cv=%.4f\n",
			gas.Name(), gas.R(), gas.K(), gas.Cp(), gas.Cv())
	}
	return nil
}
