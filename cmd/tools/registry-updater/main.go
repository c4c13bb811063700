// cmd/tools/registry-updater/main.go
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"agri-pipeline/pkg/registry"
)

const defaultRegistryPath = "configs/pipeline-registry.json"

func main() {
	syncCmd := flag.NewFlagSet("sync", flag.ExitOnError)
	updateCmd := flag.NewFlagSet("update", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)

	syncPath := syncCmd.String("path", defaultRegistryPath, "Path to registry file")

	updatePath := updateCmd.String("path", defaultRegistryPath, "Path to registry file")
	idUpdate := updateCmd.String("id", "", "Task ID to update")
	field := updateCmd.String("field", "", "Field to update (status, version, description, retries)")
	value := updateCmd.String("value", "", "New value for the field")

	validatePath := validateCmd.String("path", defaultRegistryPath, "Path to registry file")

	if len(os.Args) < 2 {
		help(os.Stdout)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "sync":
		syncCmd.Parse(os.Args[2:])
		count, err := syncRegistry(*syncPath)
		if err != nil {
			fmt.Printf("Error syncing registry: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Synced %d tasks into %s\n", count, *syncPath)

	case "update":
		updateCmd.Parse(os.Args[2:])
		if *idUpdate == "" || *field == "" || *value == "" {
			fmt.Println("Error: id, field, and value are required for update.")
			updateCmd.Usage()
			os.Exit(1)
		}
		if err := updateTask(*updatePath, *idUpdate, *field, *value); err != nil {
			fmt.Printf("Error updating task: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated task %s, field %s to %s\n", *idUpdate, *field, *value)

	case "validate":
		validateCmd.Parse(os.Args[2:])
		reg, err := registry.LoadRegistry(*validatePath)
		if err == nil {
			err = registry.Validate(reg)
		}
		if err != nil {
			fmt.Printf("Registry validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Registry validation passed. Found %d tasks.\n", len(reg.Tasks))

	case "help":
		fallthrough
	default:
		help(os.Stdout)
	}
}

// syncRegistry regenerates schemas and task metadata, keeping maintained
// fields of an existing file.
func syncRegistry(path string) (int, error) {
	built := registry.Build(time.Now())

	reg, err := registry.LoadRegistry(path)
	switch {
	case err == nil:
		reg = reg.Merge(built)
	case os.IsNotExist(err):
		reg = built
	default:
		return 0, fmt.Errorf("failed to load registry: %w", err)
	}

	if err := registry.Validate(reg); err != nil {
		return 0, err
	}
	return len(reg.Tasks), registry.SaveRegistry(reg, path)
}

func updateTask(path, id, field, value string) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	task, ok := reg.Find(id)
	if !ok {
		return fmt.Errorf("task with ID %s not found", id)
	}
	switch field {
	case "status":
		task.ImplementationStatus = value
	case "version":
		task.Version = value
	case "description":
		task.Description = value
	case "retries":
		retries, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid retries value: %w", err)
		}
		task.Retries = retries
	default:
		return fmt.Errorf("unknown field: %s", field)
	}

	reg.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	return registry.SaveRegistry(reg, path)
}

const usage = `
Usage: registry-updater <command> [flags]

Commands:
  sync     Regenerate task schemas from the pipeline definitions
  update   Update a maintained field of a task
  validate Validate the registry file
  help     Show this help message

Examples:
  registry-updater sync -path configs/pipeline-registry.json
  registry-updater update -id diagnose-crop -field status -value in-progress
  registry-updater validate

Use 'registry-updater <command> -h' for more information about a command.
`

func help(w io.Writer) {
	fmt.Fprint(w, usage)
}
