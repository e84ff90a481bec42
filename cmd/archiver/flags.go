package main

import (
	"strconv"
)

// Flag structures for parsing command line arguments

// RunFlags represents flags for the run command
type RunFlags struct {
	ConfigPath string
	Symbol     string
	Directory  string
	JSON       bool
	Help       bool
}

// ScheduleFlags represents flags for the schedule command
type ScheduleFlags struct {
	ConfigPath string
	Symbol     string
	Directory  string
	Cron       string
	RunNow     bool
	Help       bool
}

// HistoryFlags represents flags for the history command
type HistoryFlags struct {
	ConfigPath string
	Limit      int
	Format     string // empty means pick by terminal
	Help       bool
}

// Flag parsing functions

// parseRunFlags parses command line arguments for the run command
func parseRunFlags(args []string) (*RunFlags, error) {
	flags := &RunFlags{ConfigPath: ConfigFile}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config", "-c":
			value, err := flagValue(args, i)
			if err != nil {
				return nil, err
			}
			flags.ConfigPath = value
			i++
		case "--symbol", "-s":
			value, err := flagValue(args, i)
			if err != nil {
				return nil, err
			}
			flags.Symbol = value
			i++
		case "--dir", "-d":
			value, err := flagValue(args, i)
			if err != nil {
				return nil, err
			}
			flags.Directory = value
			i++
		case "--json":
			flags.JSON = true
		case "--help", "-h":
			flags.Help = true
		default:
			return nil, usageError("unknown flag: %s", args[i])
		}
	}

	return flags, nil
}

// parseScheduleFlags parses command line arguments for the schedule command
func parseScheduleFlags(args []string) (*ScheduleFlags, error) {
	flags := &ScheduleFlags{ConfigPath: ConfigFile}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config", "-c":
			value, err := flagValue(args, i)
			if err != nil {
				return nil, err
			}
			flags.ConfigPath = value
			i++
		case "--symbol", "-s":
			value, err := flagValue(args, i)
			if err != nil {
				return nil, err
			}
			flags.Symbol = value
			i++
		case "--dir", "-d":
			value, err := flagValue(args, i)
			if err != nil {
				return nil, err
			}
			flags.Directory = value
			i++
		case "--cron":
			value, err := flagValue(args, i)
			if err != nil {
				return nil, err
			}
			flags.Cron = value
			i++
		case "--run-now":
			flags.RunNow = true
		case "--help", "-h":
			flags.Help = true
		default:
			return nil, usageError("unknown flag: %s", args[i])
		}
	}

	return flags, nil
}

// parseHistoryFlags parses command line arguments for the history command
func parseHistoryFlags(args []string) (*HistoryFlags, error) {
	flags := &HistoryFlags{
		ConfigPath: ConfigFile,
		Limit:      20, // Default limit
	}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config", "-c":
			value, err := flagValue(args, i)
			if err != nil {
				return nil, err
			}
			flags.ConfigPath = value
			i++
		case "--limit", "-l":
			value, err := flagValue(args, i)
			if err != nil {
				return nil, err
			}
			limit, err := strconv.Atoi(value)
			if err != nil || limit < 0 {
				return nil, usageError("invalid limit value: %s", value)
			}
			flags.Limit = limit
			i++
		case "--format", "-f":
			value, err := flagValue(args, i)
			if err != nil {
				return nil, err
			}
			if value != "json" && value != "csv" && value != "table" {
				return nil, usageError("invalid format, must be: json, csv, or table")
			}
			flags.Format = value
			i++
		case "--help", "-h":
			flags.Help = true
		default:
			return nil, usageError("unknown flag: %s", args[i])
		}
	}

	return flags, nil
}

// flagValue returns the argument following args[i]; empty values are rejected
func flagValue(args []string, i int) (string, error) {
	if i+1 >= len(args) || args[i+1] == "" {
		return "", usageError("%s requires a value", args[i])
	}
	return args[i+1], nil
}
