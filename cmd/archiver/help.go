package main

import (
	"fmt"
	"io"
)

// Help and usage functions

// printUsage prints the main usage information
func printUsage(w io.Writer) {
	fmt.Fprintf(w, `%s - Trades Archiver CLI v%s

USAGE:
    %s <command> [options]

COMMANDS:
    run         Fetch recent trades once, write the CSV and upload it
    schedule    Archive on a cron schedule until interrupted
    history     List recorded archive runs
    version     Show version information

GLOBAL OPTIONS:
    --help, -h     Show help information
    --version, -v  Show version information

EXAMPLES:
    # Archive BTC-BRL trades into ./data/trades and upload them
    %s run --symbol BTC-BRL --dir ./data/trades

    # Archive every 15 minutes, starting with one run right away
    %s schedule --cron "0 */15 * * * *" --run-now

    # Show the last 10 runs as JSON
    %s history --limit 10 --format json

CONFIGURATION:
    Configuration can be provided via:
    - Config file: %s (YAML, or JSON when the name ends in .json)
    - Environment variables, e.g. EXCHANGE_SYMBOL, S3_BUCKET, AWS_ACCESS_KEY_ID
    - A .env file in the working directory; variables already set take precedence

    Example config file:
        exchange:
          base_url: https://api.mercadobitcoin.net/api/v4
          symbol: BTC-BRL
        upload:
          bucket: mercadobitcoin-api
          folder: trades
          region: us-east-1

EXIT CODES:
    0 success, 1 usage, 2 configuration, 3 data source, 4 input shape,
    5 destination, 6 upload, 130 interrupted

For detailed help on any command, use: %s <command> --help
`, AppName, Version, AppName, AppName, AppName, AppName, ConfigFile, AppName)
}

// printCommandHelp prints detailed help for a specific command
func printCommandHelp(w io.Writer, command string) {
	switch command {
	case "run":
		fmt.Fprintf(w, `%s run - Archive recent trades once

USAGE:
    %s run [options]

OPTIONS:
    --symbol, -s <symbol>     Market to archive (default from config: BTC-BRL)
    --dir, -d <directory>     Existing directory for the CSV file
    --config, -c <file>       Configuration file (default: %s)
    --json                    Print the run report as JSON
    --help, -h                Show this help message

EXAMPLES:
    # Archive with the configured defaults
    %s run

    # Archive ETH-BRL into /var/lib/trades
    %s run --symbol ETH-BRL --dir /var/lib/trades

NOTES:
    - The file is named api_trades_<YYYY-MM-DD>.csv; a second run on the same
      date replaces it locally and in the bucket
    - A file written before a failed upload stays on disk
    - The destination directory is not created
`, AppName, AppName, ConfigFile, AppName, AppName)

	case "schedule":
		fmt.Fprintf(w, `%s schedule - Archive on a cron schedule

USAGE:
    %s schedule [options]

OPTIONS:
    --cron <expr>             Six-field cron expression with seconds, or a
                              descriptor such as @hourly (default from config)
    --run-now                 Run once immediately, then follow the schedule
    --symbol, -s <symbol>     Market to archive
    --dir, -d <directory>     Existing directory for the CSV files
    --config, -c <file>       Configuration file (default: %s)
    --help, -h                Show this help message

EXAMPLES:
    # Archive at the top of every hour
    %s schedule --cron "0 0 * * * *"

    # Archive every 5 minutes, starting now
    %s schedule --cron "@every 5m" --run-now

NOTES:
    - A run that is still in progress when the next tick fires is not overlapped
    - Ctrl+C stops the schedule after the current run finishes
`, AppName, AppName, ConfigFile, AppName, AppName)

	case "history":
		fmt.Fprintf(w, `%s history - List recorded archive runs

USAGE:
    %s history [options]

OPTIONS:
    --limit, -l <limit>       Maximum runs to show, newest first (default: 20)
    --format, -f <format>     Output format: table, json, csv
                              (default: table on a terminal, csv otherwise)
    --config, -c <file>       Configuration file (default: %s)
    --help, -h                Show this help message

EXAMPLES:
    %s history
    %s history --limit 0 --format csv > runs.csv

NOTES:
    - Use --limit 0 to show every run
    - Requires a duckdb or sqlite ledger
`, AppName, AppName, ConfigFile, AppName, AppName)

	default:
		fmt.Fprintf(w, "No help available for command: %s\n", command)
		printUsage(w)
	}
}
