package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/deepnoodle-ai/taskengine"
	"github.com/deepnoodle-ai/taskengine/provider"
)

// CLI configuration
type Config struct {
	TaskFile      string
	StepID        string
	ProvidersFile string
	Overrides     map[string]interface{}
	LogsDir       string
	Timeout       time.Duration
	Verbose       bool
	JSON          bool
}

// taskFile is the YAML format for seeding the in-memory store.
type taskFile struct {
	Agents []struct {
		ID           string `yaml:"id"`
		Name         string `yaml:"name"`
		Capabilities string `yaml:"capabilities"`
	} `yaml:"agents"`
	Steps []struct {
		ID          string         `yaml:"id"`
		WorkflowID  string         `yaml:"workflow_id"`
		Name        string         `yaml:"name"`
		Description string         `yaml:"description"`
		Ordinal     int            `yaml:"ordinal"`
		AgentID     string         `yaml:"agent_id"`
		Inputs      map[string]any `yaml:"inputs"`
	} `yaml:"steps"`
}

func main() {
	config := parseFlags()

	if config.TaskFile == "" {
		color.Red("Error: task file is required")
		flag.Usage()
		os.Exit(1)
	}
	if config.StepID == "" {
		color.Red("Error: step ID is required")
		flag.Usage()
		os.Exit(1)
	}

	logger := setupLogger(config)

	color.Blue("Loading tasks from: %s", config.TaskFile)
	store, err := loadTaskFile(config.TaskFile)
	if err != nil {
		log.Fatalf("Failed to load task file: %v", err)
	}

	var configs []provider.Config
	if config.ProvidersFile != "" {
		configs, err = provider.LoadFile(config.ProvidersFile)
		if err != nil {
			log.Fatalf("Failed to load provider config: %v", err)
		}
		color.Blue("Providers: %s", config.ProvidersFile)
	} else {
		configs = []provider.Config{{Name: "mock", Type: provider.TypeMock, Enabled: true}}
		color.Yellow("No provider config given, using the mock provider")
	}

	var executionLogger taskengine.ExecutionLogger
	if config.LogsDir != "" {
		executionLogger = taskengine.NewFileExecutionLogger(config.LogsDir)
		color.Blue("Attempt logs: %s", config.LogsDir)
	} else {
		executionLogger = taskengine.NewNullExecutionLogger()
	}

	metrics := taskengine.NewMemoryMetrics()
	execution, err := taskengine.NewStepExecution(taskengine.ExecutionOptions{
		Store:           store,
		ProviderConfigs: configs,
		Logger:          logger,
		ExecutionLogger: executionLogger,
		Metrics:         metrics,
	})
	if err != nil {
		log.Fatalf("Failed to create execution: %v", err)
	}

	ctx := context.Background()
	if config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
		color.Yellow("Timeout: %v", config.Timeout)
	}

	color.Green("Executing step %s...\n", config.StepID)

	startTime := time.Now()
	result, err := execution.ExecuteStep(ctx, config.StepID, config.Overrides)
	duration := time.Since(startTime)

	showResults(result, err, duration, config)
	if err != nil {
		os.Exit(1)
	}
}

func showResults(result *taskengine.StepResult, err error, duration time.Duration, config *Config) {
	if config.JSON {
		out := map[string]any{"duration": duration.Seconds()}
		if err != nil {
			out["error"] = taskengine.ClassifyError(err)
		} else {
			out["result"] = result
		}
		data, marshalErr := json.MarshalIndent(out, "", "  ")
		if marshalErr != nil {
			log.Fatalf("Failed to marshal results: %v", marshalErr)
		}
		fmt.Println(string(data))
		return
	}

	if err != nil {
		classified := taskengine.ClassifyError(err)
		color.Red("Execution failed after %v", duration)
		color.Red("  code: %s", classified.Code)
		color.Red("  error: %s", classified.Message)
		return
	}

	color.Green("Execution completed in %v", duration)
	fmt.Printf("  retries: %d\n", result.RetryCount)
	fmt.Printf("  confidence: %.2f\n", result.Confidence)
	if outputs, marshalErr := json.MarshalIndent(result.Outputs, "  ", "  "); marshalErr == nil {
		fmt.Printf("  outputs: %s\n", outputs)
	}
}

func loadTaskFile(path string) (*taskengine.MemoryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read task file: %w", err)
	}
	var file taskFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task file: %w", err)
	}

	store := taskengine.NewMemoryStore()
	for _, agent := range file.Agents {
		store.PutAgent(&taskengine.Agent{
			ID:           agent.ID,
			Name:         agent.Name,
			Capabilities: agent.Capabilities,
		})
	}
	for _, step := range file.Steps {
		inputs := ""
		if len(step.Inputs) > 0 {
			encoded, err := json.Marshal(step.Inputs)
			if err != nil {
				return nil, fmt.Errorf("failed to encode inputs for step %s: %w", step.ID, err)
			}
			inputs = string(encoded)
		}
		store.PutStep(&taskengine.Step{
			ID:          step.ID,
			WorkflowID:  step.WorkflowID,
			Name:        step.Name,
			Description: step.Description,
			Ordinal:     step.Ordinal,
			AgentID:     step.AgentID,
			Status:      taskengine.StepStatusPending,
			Inputs:      inputs,
		})
	}
	return store, nil
}

func parseFlags() *Config {
	config := &Config{
		Overrides: make(map[string]interface{}),
	}

	flag.StringVar(&config.TaskFile, "file", "", "Path to the YAML task definition file (required)")
	flag.StringVar(&config.TaskFile, "f", "", "Path to the YAML task definition file (shorthand)")

	flag.StringVar(&config.StepID, "step", "", "ID of the step to execute (required)")
	flag.StringVar(&config.StepID, "s", "", "ID of the step to execute (shorthand)")

	flag.StringVar(&config.ProvidersFile, "providers", "", "Path to the YAML provider config file (optional)")
	flag.StringVar(&config.ProvidersFile, "p", "", "Path to the YAML provider config file (shorthand)")

	var overrideFlags stringSlice
	flag.Var(&overrideFlags, "input", "Input override in format key=value (can be used multiple times)")
	flag.Var(&overrideFlags, "i", "Input override in format key=value (shorthand)")

	flag.StringVar(&config.LogsDir, "logs", "", "Directory to store attempt logs (optional)")
	flag.StringVar(&config.LogsDir, "l", "", "Directory to store attempt logs (shorthand)")

	flag.DurationVar(&config.Timeout, "timeout", 0, "Execution timeout (e.g., 30s, 5m)")
	flag.DurationVar(&config.Timeout, "t", 0, "Execution timeout (shorthand)")

	flag.BoolVar(&config.Verbose, "verbose", false, "Enable verbose logging")
	flag.BoolVar(&config.Verbose, "v", false, "Enable verbose logging (shorthand)")

	flag.BoolVar(&config.JSON, "json", false, "Output results in JSON format")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Task Runner - Execute a task step against a language model provider

Usage: %s [options] -file <tasks.yaml> -step <step-id>

Examples:
  # Execute a step with the mock provider
  %s -file tasks.yaml -step S1

  # Execute with real providers and attempt logging
  %s -file tasks.yaml -step S1 -providers providers.yaml -logs ./logs

  # Override step inputs
  %s -file tasks.yaml -step S1 -input branch=main -input count=5

Options:
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0])
		flag.PrintDefaults()
	}

	flag.Parse()

	for _, override := range overrideFlags {
		parts := strings.SplitN(override, "=", 2)
		if len(parts) != 2 {
			fmt.Fprintf(os.Stderr, "Error: invalid input format '%s'. Use key=value\n", override)
			os.Exit(1)
		}
		key, value := parts[0], parts[1]

		// Try to parse as JSON, fallback to string
		var parsedValue interface{}
		if err := json.Unmarshal([]byte(value), &parsedValue); err != nil {
			parsedValue = value
		}
		config.Overrides[key] = parsedValue
	}

	return config
}

// Custom flag type for handling multiple input values
type stringSlice []string

func (s *stringSlice) String() string {
	return strings.Join(*s, ", ")
}

func (s *stringSlice) Set(value string) error {
	*s = append(*s, value)
	return nil
}

func setupLogger(config *Config) *slog.Logger {
	if config.Verbose {
		if config.JSON {
			return taskengine.NewJSONLogger()
		}
		return taskengine.NewLogger()
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}
