package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tasksync/tasksync/internal/router"
	"github.com/tasksync/tasksync/internal/schema"
	"github.com/tasksync/tasksync/internal/status"
	"github.com/tasksync/tasksync/internal/ui"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Long: `List one page of tasks.

Online, the page comes from the task service and refreshes the local cache.
Offline, it is sorted and paged from the cache. Ids ending in * belong to
tasks created offline that have not been synced yet.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		page, _ := cmd.Flags().GetInt("page")
		limit, _ := cmd.Flags().GetInt("limit")
		sortBy, _ := cmd.Flags().GetString("sort")
		order, _ := cmd.Flags().GetString("order")
		statusFilter, _ := cmd.Flags().GetString("status")
		format, _ := cmd.Flags().GetString("format")

		ctx, cancel := commandContext()
		defer cancel()

		s, err := openSession(ctx, modeCommand, nil)
		if err != nil {
			fail("%v", err)
		}
		defer s.Close()

		result, err := s.client.List(ctx, schema.Query{
			Page:   page,
			Limit:  limit,
			SortBy: schema.SortField(sortBy),
			Order:  schema.Order(order),
			Status: schema.Status(statusFilter),
		})
		if err != nil {
			fail("%v", err)
		}
		if err := writePage(os.Stdout, result, format, ui.IsTerminal(os.Stdout)); err != nil {
			fail("%v", err)
		}
		if s.client.Status() == status.Offline && format == "table" {
			fmt.Fprintln(os.Stderr, "(offline: showing cached tasks)")
		}
	},
}

var addCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a task",
	Long: `Create a task.

Due dates accept 2026-03-12, an RFC3339 timestamp, or natural language such
as "tomorrow" or "next friday". High priority tasks need a due date within
the next seven days.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		description, _ := cmd.Flags().GetString("description")
		taskStatus, _ := cmd.Flags().GetString("status")
		level, _ := cmd.Flags().GetString("level")
		dueText, _ := cmd.Flags().GetString("due")

		due, err := parseDue(dueText, time.Now())
		if err != nil {
			fail("%v", err)
		}

		ctx, cancel := commandContext()
		defer cancel()

		s, err := openSession(ctx, modeCommand, nil)
		if err != nil {
			fail("%v", err)
		}
		defer s.Close()

		task, err := s.client.Create(ctx, schema.Task{
			Title:         args[0],
			Description:   description,
			Status:        schema.Status(taskStatus),
			PriorityLevel: schema.PriorityLevel(level),
			DueDate:       due,
		})
		if err != nil {
			fail("%v", err)
		}
		fmt.Print(ui.NewRenderer(os.Stdout, ui.IsTerminal(os.Stdout)).Task(task))
		reportQueued(s)
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a task",
	Long: `Update the given fields of a task. Done tasks cannot be changed.

The id may be a temporary id shown for a task created offline.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		patch, err := patchFromFlags(cmd, time.Now())
		if err != nil {
			fail("%v", err)
		}
		if patch.IsEmpty() {
			fail("nothing to update; pass at least one field flag")
		}

		ctx, cancel := commandContext()
		defer cancel()

		s, err := openSession(ctx, modeCommand, nil)
		if err != nil {
			fail("%v", err)
		}
		defer s.Close()

		task, err := s.client.Update(ctx, args[0], patch)
		if err != nil {
			fail("%v", err)
		}
		fmt.Print(ui.NewRenderer(os.Stdout, ui.IsTerminal(os.Stdout)).Task(task))
		reportQueued(s)
	},
}

var rmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Delete a task",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		s, err := openSession(ctx, modeCommand, nil)
		if err != nil {
			fail("%v", err)
		}
		defer s.Close()

		if err := s.client.Delete(ctx, args[0]); err != nil {
			fail("%v", err)
		}
		fmt.Printf("Deleted %s\n", args[0])
		reportQueued(s)
	},
}

var reorderCmd = &cobra.Command{
	Use:   "reorder <drag-id> <target-id>",
	Short: "Move a task to another task's position",
	Long: `Move a task to the position of another task in priority order and
renumber the priorities of every task between them.

Done tasks keep their priority.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := commandContext()
		defer cancel()

		s, err := openSession(ctx, modeCommand, nil)
		if err != nil {
			fail("%v", err)
		}
		defer s.Close()

		if err := s.client.Reorder(ctx, args[0], args[1]); err != nil {
			fail("%v", err)
		}
		fmt.Printf("Moved %s to the position of %s\n", args[0], args[1])
	},
}

func init() {
	listCmd.Flags().Int("page", 1, "page number (1-based)")
	listCmd.Flags().Int("limit", 10, "tasks per page")
	listCmd.Flags().String("sort", string(schema.SortCreatedAt), "sort field: createdAt, updatedAt, title, priority, dueDate")
	listCmd.Flags().String("order", string(schema.Asc), "sort order: asc or desc")
	listCmd.Flags().String("status", "", "only tasks with this status")
	listCmd.Flags().StringP("format", "f", "table", "output format: table, json or yaml")

	addCmd.Flags().StringP("description", "d", "", "task description")
	addCmd.Flags().StringP("status", "s", "", "status: todo, in-progress or done (default todo)")
	addCmd.Flags().StringP("level", "l", "", "priority level: low, medium or high (default medium)")
	addCmd.Flags().String("due", "", "due date")

	updateCmd.Flags().StringP("title", "t", "", "new title")
	updateCmd.Flags().StringP("description", "d", "", "new description")
	updateCmd.Flags().StringP("status", "s", "", "new status")
	updateCmd.Flags().StringP("level", "l", "", "new priority level")
	updateCmd.Flags().String("due", "", "new due date")
	updateCmd.Flags().Int("priority", 0, "new priority rank")

	rootCmd.AddCommand(listCmd, addCmd, updateCmd, rmCmd, reorderCmd)
}

// commandContext is cancelled on interrupt.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// patchFromFlags builds a patch from the flags the user actually set.
func patchFromFlags(cmd *cobra.Command, now time.Time) (schema.TaskPatch, error) {
	var patch schema.TaskPatch
	flags := cmd.Flags()
	if flags.Changed("title") {
		v, _ := flags.GetString("title")
		patch.Title = &v
	}
	if flags.Changed("description") {
		v, _ := flags.GetString("description")
		patch.Description = &v
	}
	if flags.Changed("status") {
		v, _ := flags.GetString("status")
		patch.Status = schema.Ptr(schema.Status(v))
	}
	if flags.Changed("level") {
		v, _ := flags.GetString("level")
		patch.PriorityLevel = schema.Ptr(schema.PriorityLevel(v))
	}
	if flags.Changed("due") {
		v, _ := flags.GetString("due")
		due, err := parseDue(v, now)
		if err != nil {
			return schema.TaskPatch{}, err
		}
		patch.DueDate = &due
	}
	if flags.Changed("priority") {
		v, _ := flags.GetInt("priority")
		patch.Priority = &v
	}
	return patch, nil
}

// writePage prints a page as a table, JSON or YAML.
func writePage(w io.Writer, page schema.Page, format string, color bool) error {
	switch format {
	case "table":
		_, err := io.WriteString(w, ui.NewRenderer(w, color).Tasks(page, router.IsTempID))
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(page)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(page); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (want table, json or yaml)", format)
	}
}

// reportQueued tells the user when a change is waiting for connectivity.
func reportQueued(s *session) {
	if !s.client.Monitor.Online() {
		fmt.Fprintln(os.Stderr, "Offline: change queued and will sync when the task service is reachable")
	}
}
