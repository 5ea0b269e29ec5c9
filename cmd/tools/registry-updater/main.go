package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"manhwa-recommender/pkg/registry"
)

func main() {
	listCmd := flag.NewFlagSet("list", flag.ExitOnError)
	updateCmd := flag.NewFlagSet("update", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)

	listPath := listCmd.String("path", "configs/task-registry.json", "Path to registry file")

	updatePath := updateCmd.String("path", "configs/task-registry.json", "Path to registry file")
	taskType := updateCmd.String("taskType", "", "Task type to update (e.g., refresh-trending)")
	field := updateCmd.String("field", "", "Field to update (status, version, timeout, retries, description)")
	value := updateCmd.String("value", "", "New value for the field")

	validatePath := validateCmd.String("path", "configs/task-registry.json", "Path to registry file")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "list":
		listCmd.Parse(os.Args[2:])
		reg, err := registry.Load(*listPath)
		if err != nil {
			fmt.Printf("Error loading registry: %v\n", err)
			os.Exit(1)
		}
		for _, t := range reg.Tasks {
			fmt.Printf("%-28s %-14s %-12s %s\n", t.TaskType, t.Category, t.Status, strings.Join(t.Workflows, ","))
		}

	case "update":
		updateCmd.Parse(os.Args[2:])
		if *taskType == "" || *field == "" || *value == "" {
			fmt.Println("Error: taskType, field, and value are required for update.")
			updateCmd.Usage()
			os.Exit(1)
		}
		if err := updateTask(*updatePath, *taskType, *field, *value); err != nil {
			fmt.Printf("Error updating task: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated task %s, field %s to %s\n", *taskType, *field, *value)

	case "validate":
		validateCmd.Parse(os.Args[2:])
		reg, err := registry.Load(*validatePath)
		if err != nil {
			fmt.Printf("Error loading registry: %v\n", err)
			os.Exit(1)
		}
		if err := reg.Validate(); err != nil {
			fmt.Printf("Registry validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Registry validation passed. Found %d tasks.\n", len(reg.Tasks))

	default:
		help()
	}
}

// updateTask changes one field and refuses to save a registry that no
// longer validates.
func updateTask(path, taskType, field, value string) error {
	reg, err := registry.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	task, ok := reg.Find(taskType)
	if !ok {
		return fmt.Errorf("task %s not found", taskType)
	}

	switch field {
	case "status":
		task.Status = value
	case "version":
		task.Version = value
	case "description":
		task.Description = value
	case "timeout":
		task.Timeout = value
	case "retries":
		retries, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid retries value: %w", err)
		}
		task.Retries = retries
	default:
		return fmt.Errorf("unknown field: %s", field)
	}

	if err := reg.Validate(); err != nil {
		return err
	}
	return registry.Save(reg, path)
}

func help() {
	fmt.Println(`
Usage: registry-updater <command> [flags]

Commands:
  list      Print every registered task type
  update    Update one field of a registered task
  validate  Validate the registry file and its schemas

Examples:
  registry-updater list
  registry-updater update -taskType refresh-trending -field status -value verified
  registry-updater validate -path configs/task-registry.json`)
}
