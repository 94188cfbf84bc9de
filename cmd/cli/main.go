package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/expense-bot/internal/config"
	"github.com/dvloznov/expense-bot/internal/currency"
	"github.com/dvloznov/expense-bot/internal/domain"
	"github.com/dvloznov/expense-bot/internal/ledger"
	"github.com/dvloznov/expense-bot/internal/logger"
	"github.com/dvloznov/expense-bot/internal/subscriptions"
)

func main() {
	log := logger.New(false)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "check":
		runCheck(log)
	case "rate":
		runRate(log)
	case "post":
		runPost(log)
	case "due":
		runDue(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Expense Bot CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  check     Verify the configured spreadsheets and sheet tabs")
	fmt.Println("  rate      Fetch and print the current COP/USD exchange rate")
	fmt.Println("  post      Post a single expense to both ledgers")
	fmt.Println("  due       List the subscriptions due today")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func loadConfig(log zerolog.Logger) *config.Config {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	return cfg
}

func runCheck(log zerolog.Logger) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	fs.Parse(os.Args[2:])

	cfg := loadConfig(log)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	store, err := ledger.NewSheetsStore(ctx, cfg.GoogleCredentialsFile, cfg.AccountingSpreadsheetID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create accounting sheets store")
	}
	if err := store.CheckSheets(ctx, cfg.ExpensesSheetName, cfg.MovementsSheetName); err != nil {
		log.Fatal().Err(err).Msg("Accounting spreadsheet check failed")
	}
	fmt.Printf("Accounting spreadsheet OK: %q, %q\n", cfg.ExpensesSheetName, cfg.MovementsSheetName)

	if cfg.SubscriptionsSpreadsheet != "" {
		subsStore, err := ledger.NewSheetsStore(ctx, cfg.GoogleCredentialsFile, cfg.SubscriptionsSpreadsheet)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create subscriptions sheets store")
		}
		if err := subsStore.CheckSheets(ctx, cfg.SubscriptionsSheetName); err != nil {
			log.Fatal().Err(err).Msg("Subscriptions spreadsheet check failed")
		}
		fmt.Printf("Subscriptions spreadsheet OK: %q\n", cfg.SubscriptionsSheetName)
	}
}

func runRate(log zerolog.Logger) {
	fs := flag.NewFlagSet("rate", flag.ExitOnError)
	fs.Parse(os.Args[2:])

	cfg := loadConfig(log)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	source := currency.NewFreeCurrencyAPI(cfg.FreeCurrencyAPIKey)
	normalizer := currency.NewNormalizer(ctx, source, cfg.DefaultCOPPerUSD, log)

	rate := normalizer.CurrentRate()
	fmt.Printf("1 USD = %s COP\n", rate.COPPerUSD.StringFixed(2))
	fmt.Printf("1 COP = %s USD\n", rate.USDPerCOP.StringFixed(6))
}

func runPost(log zerolog.Logger) {
	fs := flag.NewFlagSet("post", flag.ExitOnError)
	description := fs.String("description", "", "Expense description")
	category := fs.String("category", "", "Expense category")
	amount := fs.String("amount", "", "Amount in the source currency")
	cur := fs.String("currency", "COP", "Source currency: COP or USD")
	date := fs.String("date", "", "Expense date as DD/MM/YYYY (defaults to today)")
	fs.Parse(os.Args[2:])

	if *description == "" || *amount == "" {
		log.Fatal().Msg("Usage: cli post -description TEXT -amount VALUE [-currency COP|USD] [-category NAME] [-date DD/MM/YYYY]")
	}

	cfg := loadConfig(log)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	source := currency.NewFreeCurrencyAPI(cfg.FreeCurrencyAPIKey)
	normalizer := currency.NewNormalizer(ctx, source, cfg.DefaultCOPPerUSD, log)

	sourceCurrency := domain.CurrencyCOP
	if *cur == string(domain.CurrencyUSD) {
		sourceCurrency = domain.CurrencyUSD
	}

	value, err := decimal.NewFromString(*amount)
	if err != nil {
		value = normalizer.ParseAmount(*amount)
	}
	if !value.IsPositive() {
		log.Fatal().Str("amount", *amount).Msg("Amount must be a positive number")
	}

	when := ledger.TodayIn(cfg.Location())
	if *date != "" {
		parsed, err := time.Parse("02/01/2006", *date)
		if err != nil {
			log.Fatal().Err(err).Str("date", *date).Msg("Invalid date")
		}
		when = parsed
	}

	record := domain.ExpenseRecord{
		Date:           when,
		Description:    *description,
		Category:       domain.NormalizeCategory(*category),
		SourceCurrency: sourceCurrency,
	}
	if sourceCurrency == domain.CurrencyCOP {
		record.AmountCOP = value
		if usd, ok := normalizer.Convert(value, domain.CurrencyCOP, domain.CurrencyUSD); ok {
			record.AmountUSD = usd
		}
	} else {
		record.AmountUSD = value
		if cop, ok := normalizer.Convert(value, domain.CurrencyUSD, domain.CurrencyCOP); ok {
			record.AmountCOP = cop
		}
	}

	store, err := ledger.NewSheetsStore(ctx, cfg.GoogleCredentialsFile, cfg.AccountingSpreadsheetID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create sheets store")
	}
	poster := ledger.NewPoster(store, normalizer, cfg.ExpensesSheetName, cfg.MovementsSheetName, cfg.LedgerNumericCells, log)

	if !poster.Post(ctx, []domain.ExpenseRecord{record}) {
		log.Fatal().Msg("Posting failed, check the logs above")
	}

	fmt.Printf("Posted: %s | %s | %s / %s\n",
		record.Description,
		record.Category,
		normalizer.Format(record.AmountCOP, domain.CurrencyCOP),
		normalizer.Format(record.AmountUSD, domain.CurrencyUSD),
	)
}

func runDue(log zerolog.Logger) {
	fs := flag.NewFlagSet("due", flag.ExitOnError)
	fs.Parse(os.Args[2:])

	cfg := loadConfig(log)
	if cfg.SubscriptionsSpreadsheet == "" {
		log.Fatal().Msg("SUBSCRIPTIONS_SPREADSHEET_ID is not configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	source := currency.NewFreeCurrencyAPI(cfg.FreeCurrencyAPIKey)
	normalizer := currency.NewNormalizer(ctx, source, cfg.DefaultCOPPerUSD, log)

	store, err := ledger.NewSheetsStore(ctx, cfg.GoogleCredentialsFile, cfg.SubscriptionsSpreadsheet)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create subscriptions sheets store")
	}
	reader := subscriptions.NewReader(store, cfg.SubscriptionsSheetName, normalizer, log)

	subs, err := reader.Load(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load subscriptions")
	}

	today := ledger.TodayIn(cfg.Location())
	due := subscriptions.Due(subs, today)

	fmt.Printf("\n=== Subscriptions due %s (%d) ===\n", today.Format("02/01/2006"), len(due))
	for i, sub := range due {
		fmt.Printf("\n%d. %s\n", i+1, sub.Description)
		fmt.Printf("   Category:  %s\n", domain.NormalizeCategory(sub.Category))
		fmt.Printf("   Amount:    %s", normalizer.Format(sub.AmountUSD, domain.CurrencyUSD))
		if !sub.AmountCOP.IsZero() {
			fmt.Printf(" / %s", normalizer.Format(sub.AmountCOP, domain.CurrencyCOP))
		}
		fmt.Println()
		fmt.Printf("   Paid with: %s\n", sub.PaidWith)
	}
	fmt.Println()
}
