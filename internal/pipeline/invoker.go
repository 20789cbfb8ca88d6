package pipeline

import (
	"fmt"
	"log/slog"
	"time"
)

// CommandConfig represents a command configuration with name and parameters
type CommandConfig struct {
	Name   string
	Params map[string]any
}

// Invoker executes a sequence of commands on image data
type Invoker struct {
	commands []Command
}

// NewInvoker creates an invoker from already constructed commands
func NewInvoker(commands []Command) *Invoker {
	return &Invoker{
		commands: commands,
	}
}

// NewInvokerFromConfigs builds all commands from the registry up front so that
// configuration errors surface at startup rather than per request.
func NewInvokerFromConfigs(configs []CommandConfig) (*Invoker, error) {
	commands := make([]Command, 0, len(configs))
	for i, config := range configs {
		command, err := DefaultRegistry.Create(config.Name, config.Params)
		if err != nil {
			return nil, fmt.Errorf("failed to create command at index %d (%s): %w", i, config.Name, err)
		}
		commands = append(commands, command)
	}
	return NewInvoker(commands), nil
}

// Commands returns the configured command chain
func (i *Invoker) Commands() []Command {
	return i.commands
}

// Execute applies all commands in sequence to the image data
func (i *Invoker) Execute(imageData []byte) ([]byte, error) {
	start := time.Now()

	slog.Info("starting image processing pipeline",
		"command_count", len(i.commands),
		"input_size_bytes", len(imageData))

	if len(i.commands) == 0 {
		slog.Debug("no commands to execute, returning original image")
		return imageData, nil
	}

	currentData := imageData

	for idx, command := range i.commands {
		commandStart := time.Now()

		slog.Info("executing command",
			"index", idx,
			"command_name", command.Name(),
			"input_size_bytes", len(currentData))

		processedData, err := command.Execute(currentData)
		if err != nil {
			slog.Error("command execution failed",
				"index", idx,
				"command_name", command.Name(),
				"error", err,
				"input_size_bytes", len(currentData))
			return nil, fmt.Errorf("command %s (index %d) failed: %w", command.Name(), idx, err)
		}

		commandDuration := time.Since(commandStart)
		slog.Info("command completed",
			"index", idx,
			"command_name", command.Name(),
			"duration_ms", commandDuration.Milliseconds(),
			"input_size_bytes", len(currentData),
			"output_size_bytes", len(processedData))

		currentData = processedData
	}

	totalDuration := time.Since(start)
	slog.Info("image processing pipeline completed",
		"total_duration_ms", totalDuration.Milliseconds(),
		"command_count", len(i.commands),
		"final_size_bytes", len(currentData))

	return currentData, nil
}

// DefaultCommandConfigs is the pipeline used when none is configured:
// normalize to PNG, remove the background, crop to the remaining subject.
func DefaultCommandConfigs() []CommandConfig {
	return []CommandConfig{
		{Name: "PngConvertCommand", Params: map[string]any{}},
		{Name: "RemoveBackgroundCommand", Params: map[string]any{}},
		{Name: "TrimCommand", Params: map[string]any{}},
	}
}
