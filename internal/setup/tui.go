// Package setup implements the interactive configuration wizard.
package setup

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/gridbot/config"
	"github.com/vadiminshakov/gridbot/internal/domain"
	"gopkg.in/yaml.v3"
)

// DefaultFile where the wizard writes the generated config.
const DefaultFile = "config.gen.yaml"

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// Answers collected by the wizard.
type Answers struct {
	Platform       string
	Pair           string
	TargetLevels   string
	LevelSize      string
	SettingsSource string
	SettingsURL    string
	ATRInterval    string
	ATRPeriod      string
	ATRFactor      string
	ControlAddr    string
	SimQuote       string
}

func defaultAnswers() Answers {
	return Answers{
		Platform:       config.PlatformSimulate,
		Pair:           "BTC_FDUSD",
		TargetLevels:   strconv.Itoa(domain.DefaultTargetTotalLevels),
		SettingsSource: config.SettingsSourceAPI,
		SettingsURL:    "http://127.0.0.1:8000",
		ATRInterval:    "1m",
		ATRPeriod:      "14",
		ATRFactor:      "1",
		ControlAddr:    ":8080",
		SimQuote:       "10000",
	}
}

func step(title string) {
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("GRIDBOT CONFIG WIZARD"))
	fmt.Println(stepStyle.Render(title))
}

// RunTUI launches the terminal configuration wizard and writes DefaultFile.
func RunTUI() error {
	a := defaultAnswers()
	var confirm bool

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("GRIDBOT CONFIG WIZARD"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Let's lay out your grid.\n"))

	step("STEP 1: PLATFORM")
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select Exchange Platform").
				Options(
					huh.NewOption("Binance (cross margin)", config.PlatformBinance),
					huh.NewOption("Simulation", config.PlatformSimulate),
				).
				Value(&a.Platform),
		),
	).Run()
	if err != nil {
		return err
	}

	step("STEP 2: GRID")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Trading Pair").
				Description("BASE_QUOTE (e.g. BTC_FDUSD)").
				Value(&a.Pair).
				Validate(validatePair),
			huh.NewInput().
				Title("Grid Orders").
				Description("Number of orders to keep on the book").
				Value(&a.TargetLevels).
				Validate(validatePositiveInt),
			huh.NewInput().
				Title("Initial Level Size").
				Description("Quote distance between levels, empty to wait for the settings source").
				Value(&a.LevelSize).
				Validate(validateOptionalPositive),
		),
	).Run()
	if err != nil {
		return err
	}

	step("STEP 3: LEVEL SIZE SOURCE")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Where should level sizes come from?").
				Options(
					huh.NewOption("Settings API", config.SettingsSourceAPI),
					huh.NewOption("ATR of recent candles", config.SettingsSourceATR),
				).
				Value(&a.SettingsSource),
		),
	).Run()
	if err != nil {
		return err
	}

	var sourceFields []huh.Field
	if a.SettingsSource == config.SettingsSourceATR {
		sourceFields = []huh.Field{
			huh.NewInput().Title("Candle Interval").Value(&a.ATRInterval),
			huh.NewInput().Title("ATR Period").Value(&a.ATRPeriod).Validate(validatePositiveInt),
			huh.NewInput().Title("ATR Factor").Value(&a.ATRFactor).Validate(validateOptionalPositive),
		}
	} else {
		sourceFields = []huh.Field{
			huh.NewInput().Title("Settings API URL").Value(&a.SettingsURL),
		}
	}
	if a.Platform == config.PlatformSimulate {
		sourceFields = append(sourceFields, huh.NewInput().
			Title("Simulated Quote Balance").
			Value(&a.SimQuote).
			Validate(validateOptionalPositive))
	}
	sourceFields = append(sourceFields, huh.NewInput().Title("Control Server Address").Value(&a.ControlAddr))

	step("STEP 4: DETAILS")
	if err = huh.NewForm(huh.NewGroup(sourceFields...)).Run(); err != nil {
		return err
	}

	step("FINAL CONFIRMATION")
	summary := fmt.Sprintf(
		"Platform: %s\nPair: %s\nOrders: %s\nLevel size source: %s\nControl: %s\n",
		a.Platform, a.Pair, a.TargetLevels, a.SettingsSource, a.ControlAddr,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save and start").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	if err := Write(DefaultFile, a); err != nil {
		return err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s\nStart with --config %s", DefaultFile, DefaultFile)))
	time.Sleep(1500 * time.Millisecond)
	return nil
}

// Build converts answers into the yaml config representation.
func Build(a Answers) (config.ConfigTmp, error) {
	levels, err := strconv.Atoi(a.TargetLevels)
	if err != nil {
		return config.ConfigTmp{}, fmt.Errorf("invalid grid orders: %w", err)
	}

	cfg := config.ConfigTmp{
		Platform:     a.Platform,
		Pair:         a.Pair,
		TargetLevels: levels,
		LevelSize:    a.LevelSize,
		Settings:     config.SettingsTmp{Source: a.SettingsSource},
		Control:      config.ControlTmp{Addr: a.ControlAddr},
	}

	if a.SettingsSource == config.SettingsSourceATR {
		period, err := strconv.Atoi(a.ATRPeriod)
		if err != nil {
			return config.ConfigTmp{}, fmt.Errorf("invalid atr period: %w", err)
		}
		cfg.Settings.ATRInterval = a.ATRInterval
		cfg.Settings.ATRPeriod = period
		cfg.Settings.ATRFactor = a.ATRFactor
	} else {
		cfg.Settings.URL = a.SettingsURL
	}
	if a.Platform == config.PlatformSimulate {
		cfg.SimQuoteBalance = a.SimQuote
	}

	return cfg, nil
}

// Write saves answers as yaml.
func Write(path string, a Answers) error {
	cfg, err := Build(a)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}

func validatePair(s string) error {
	if s == "" {
		return fmt.Errorf("pair cannot be empty")
	}
	if _, err := domain.ParsePair(s); err != nil {
		return fmt.Errorf("invalid format: must be BASE_QUOTE (e.g. BTC_FDUSD)")
	}
	return nil
}

func validatePositiveInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fmt.Errorf("must be a positive integer")
	}
	return nil
}

func validateOptionalPositive(s string) error {
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if !d.IsPositive() {
		return fmt.Errorf("must be positive")
	}
	return nil
}
