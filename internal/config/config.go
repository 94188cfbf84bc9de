// Package config builds the application configuration once at process start.
// Every component receives the values it needs through its constructor;
// nothing outside this package reads the process environment.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all runtime configuration for the expense bot and the
// recurring-expense notifier.
type Config struct {
	Debug bool

	// Chat transport
	TelegramToken string

	// Google Sheets
	GoogleCredentialsFile    string
	AccountingSpreadsheetID  string
	ExpensesSheetName        string
	MovementsSheetName       string
	SubscriptionsSpreadsheet string
	SubscriptionsSheetName   string

	// LedgerNumericCells selects typed numeric cells for amounts instead of
	// display-formatted text. Both sheet conventions are in use historically.
	LedgerNumericCells bool

	// Invoice extraction
	GeminiAPIKey string
	GeminiModel  string

	// Exchange rates
	FreeCurrencyAPIKey string
	DefaultCOPPerUSD   decimal.Decimal
	// CurrencyGuessThreshold is the amount above which an unlabeled invoice
	// amount is assumed to be COP. Heuristic, not a business rule.
	CurrencyGuessThreshold decimal.Decimal

	// Email notifications
	ResendAPIKey      string
	SenderEmail       string
	NotificationEmail string

	// Scheduling
	NotificationTime string // HH:MM, local time
	Timezone         string
}

// Load builds a Config from environment variables, with an optional .env file
// providing overridable defaults.
func Load() (*Config, error) {
	// Attempt to load .env file, ignore error if it doesn't exist
	_ = godotenv.Load()

	viper.SetDefault("DEBUG", false)
	viper.SetDefault("TELEGRAM_TOKEN", "")
	viper.SetDefault("GOOGLE_CREDENTIALS_FILE", "creds.json")
	viper.SetDefault("ACCOUNTING_SPREADSHEET_ID", "")
	viper.SetDefault("ACCOUNTING_EXPENSES_SHEET_NAME", "Gastos")
	viper.SetDefault("ACCOUNTING_MOVEMENTS_SHEET_NAME", "Movimientos caja")
	viper.SetDefault("SUBSCRIPTIONS_SPREADSHEET_ID", "")
	viper.SetDefault("SUBSCRIPTIONS_SHEET_NAME", "Gastos Fijos")
	viper.SetDefault("LEDGER_NUMERIC_CELLS", true)
	viper.SetDefault("GEMINI_API_KEY", "")
	viper.SetDefault("GEMINI_MODEL", "gemini-2.0-flash")
	viper.SetDefault("FREE_CURRENCY_API_KEY", "")
	viper.SetDefault("DEFAULT_COP_PER_USD", "4000")
	viper.SetDefault("CURRENCY_GUESS_THRESHOLD", "1000")
	viper.SetDefault("RESEND_API_KEY", "")
	viper.SetDefault("SENDER_EMAIL", "Notificador de Gastos <gastos@tudominio.com>")
	viper.SetDefault("NOTIFICATION_EMAIL", "")
	viper.SetDefault("NOTIFICATION_TIME", "08:00")
	viper.SetDefault("TIMEZONE", "America/Bogota")

	viper.AutomaticEnv()

	defaultRate, err := decimal.NewFromString(viper.GetString("DEFAULT_COP_PER_USD"))
	if err != nil {
		return nil, fmt.Errorf("config: invalid DEFAULT_COP_PER_USD: %w", err)
	}
	if !defaultRate.IsPositive() {
		return nil, fmt.Errorf("config: DEFAULT_COP_PER_USD must be positive, got %s", defaultRate)
	}
	threshold, err := decimal.NewFromString(viper.GetString("CURRENCY_GUESS_THRESHOLD"))
	if err != nil {
		return nil, fmt.Errorf("config: invalid CURRENCY_GUESS_THRESHOLD: %w", err)
	}

	cfg := &Config{
		Debug:                    viper.GetBool("DEBUG"),
		TelegramToken:            viper.GetString("TELEGRAM_TOKEN"),
		GoogleCredentialsFile:    viper.GetString("GOOGLE_CREDENTIALS_FILE"),
		AccountingSpreadsheetID:  viper.GetString("ACCOUNTING_SPREADSHEET_ID"),
		ExpensesSheetName:        viper.GetString("ACCOUNTING_EXPENSES_SHEET_NAME"),
		MovementsSheetName:       viper.GetString("ACCOUNTING_MOVEMENTS_SHEET_NAME"),
		SubscriptionsSpreadsheet: viper.GetString("SUBSCRIPTIONS_SPREADSHEET_ID"),
		SubscriptionsSheetName:   viper.GetString("SUBSCRIPTIONS_SHEET_NAME"),
		LedgerNumericCells:       viper.GetBool("LEDGER_NUMERIC_CELLS"),
		GeminiAPIKey:             viper.GetString("GEMINI_API_KEY"),
		GeminiModel:              viper.GetString("GEMINI_MODEL"),
		FreeCurrencyAPIKey:       viper.GetString("FREE_CURRENCY_API_KEY"),
		DefaultCOPPerUSD:         defaultRate,
		CurrencyGuessThreshold:   threshold,
		ResendAPIKey:             viper.GetString("RESEND_API_KEY"),
		SenderEmail:              viper.GetString("SENDER_EMAIL"),
		NotificationEmail:        viper.GetString("NOTIFICATION_EMAIL"),
		NotificationTime:         viper.GetString("NOTIFICATION_TIME"),
		Timezone:                 viper.GetString("TIMEZONE"),
	}

	return cfg, nil
}

// ValidateBot checks the fields the Telegram bot cannot run without.
func (c *Config) ValidateBot() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("config: TELEGRAM_TOKEN is required")
	}
	if c.AccountingSpreadsheetID == "" {
		return fmt.Errorf("config: ACCOUNTING_SPREADSHEET_ID is required")
	}
	return nil
}

// ValidateNotifier checks the fields the recurring notifier cannot run without.
func (c *Config) ValidateNotifier() error {
	if c.AccountingSpreadsheetID == "" {
		return fmt.Errorf("config: ACCOUNTING_SPREADSHEET_ID is required")
	}
	if c.SubscriptionsSpreadsheet == "" {
		return fmt.Errorf("config: SUBSCRIPTIONS_SPREADSHEET_ID is required")
	}
	if c.NotificationEmail == "" {
		return fmt.Errorf("config: NOTIFICATION_EMAIL is required")
	}
	return nil
}

// Location resolves the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// CronSpec converts the HH:MM notification time into a daily cron expression.
func (c *Config) CronSpec() (string, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(c.NotificationTime, "%d:%d", &hour, &minute); err != nil {
		return "", fmt.Errorf("config: invalid NOTIFICATION_TIME %q: %w", c.NotificationTime, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return "", fmt.Errorf("config: NOTIFICATION_TIME %q out of range", c.NotificationTime)
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}
