package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/qianban/qianban/internal/companion"
	"github.com/qianban/qianban/internal/config"
	"github.com/qianban/qianban/internal/interest"
	"github.com/qianban/qianban/internal/storage"
)

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Chat with the companion",
	Long: `Chat with the companion. With a message argument a single turn is sent;
without arguments an interactive session starts.

Examples:
  qianban chat "我最近喜欢上打太极了"
  qianban chat --provider fallback`,
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, _ := cmd.Flags().GetString("provider")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if len(args) > 0 {
			return chatOnce(cmd, client, strings.Join(args, " "), provider)
		}

		fmt.Fprintln(os.Stderr, "进入聊天，输入 exit 退出。")
		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Fprint(os.Stderr, "> ")
			if !scanner.Scan() {
				return scanner.Err()
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if line == "exit" || line == "quit" {
				return nil
			}
			if err := chatOnce(cmd, client, line, provider); err != nil {
				printError("%v", err)
			}
		}
	},
}

func chatOnce(cmd *cobra.Command, client *apiClient, message, provider string) error {
	resp, err := client.post(cmd.Context(), "/chat", map[string]string{
		"message":  message,
		"provider": provider,
	})
	if err != nil {
		return err
	}

	var reply companion.Reply
	if err := decodeJSON(resp, &reply); err != nil {
		return err
	}

	fmt.Fprintln(os.Stdout, reply.Text)
	if reply.FollowUpQuestion != "" {
		fmt.Fprintln(os.Stdout, paint(tintCyan, reply.FollowUpQuestion))
	}
	if len(reply.Extracted) > 0 {
		for _, it := range reply.Extracted {
			printStep("记住了：%s/%s (级别:%d)", it.Category, it.Name, it.Level)
		}
	}
	if reply.ShowInterestDialog {
		printStep("兴趣档案已足够丰富，可以展示兴趣确认页了")
	}
	return nil
}

func init() {
	chatCmd.Flags().String("provider", "", "inference backend: primary or fallback")
}

// --- interests ---

var interestsCmd = &cobra.Command{
	Use:   "interests",
	Short: "Manage the interest profile",
}

var interestsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known interests",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/interests")
		if err != nil {
			return err
		}

		var items []interest.Interest
		if err := decodeJSON(resp, &items); err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Fprintln(os.Stdout, "no interests recorded yet")
			return nil
		}
		for _, it := range items {
			fmt.Fprintf(os.Stdout, "%s/%s (级别:%d)\n", it.Category, it.Name, it.Level)
		}
		return nil
	},
}

var interestsAddCmd = &cobra.Command{
	Use:   "add <category> <name> [level]",
	Short: "Record an interest (level 1..3, default 1)",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		level := interest.LevelMild
		if len(args) == 3 {
			v, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid level %q", args[2])
			}
			level = v
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/interests", interest.Interest{
			Category: args[0],
			Name:     args[1],
			Level:    level,
		})
		if err != nil {
			return err
		}

		var items []interest.Interest
		if err := decodeJSON(resp, &items); err != nil {
			return err
		}
		printSuccess("Recorded %s/%s (%d interests total)", args[0], args[1], len(items))
		return nil
	},
}

var interestsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Erase the entire interest profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/interests")
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Interest profile cleared")
		return nil
	},
}

var interestsQuestionCmd = &cobra.Command{
	Use:   "question",
	Short: "Show the next hobby question",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/interests/next-question", nil)
		if err != nil {
			return err
		}

		var result struct {
			Question   string `json:"question"`
			Asked      int    `json:"asked"`
			ShowDialog bool   `json:"show_dialog"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, result.Question)
		printStatus("Asked so far", "%d", result.Asked)
		return nil
	},
}

func init() {
	interestsCmd.AddCommand(interestsListCmd)
	interestsCmd.AddCommand(interestsAddCmd)
	interestsCmd.AddCommand(interestsClearCmd)
	interestsCmd.AddCommand(interestsQuestionCmd)
}

// --- friends ---

var friendsCmd = &cobra.Command{
	Use:   "friends",
	Short: "Manage the friend list",
}

var friendsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List friends",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/friends")
		if err != nil {
			return err
		}

		var friends []storage.Friend
		if err := decodeJSON(resp, &friends); err != nil {
			return err
		}
		if len(friends) == 0 {
			fmt.Fprintln(os.Stdout, "no friends recorded yet")
			return nil
		}
		for _, f := range friends {
			line := f.Name
			if f.Relation != "" {
				line += " (" + f.Relation + ")"
			}
			if f.Phone != "" {
				line += "  " + f.Phone
			}
			fmt.Fprintf(os.Stdout, "%s  %s\n", f.ID, line)
		}
		return nil
	},
}

var friendsAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a friend",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		phone, _ := cmd.Flags().GetString("phone")
		relation, _ := cmd.Flags().GetString("relation")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/friends", storage.Friend{
			Name:     args[0],
			Phone:    phone,
			Relation: relation,
		})
		if err != nil {
			return err
		}

		var f storage.Friend
		if err := decodeJSON(resp, &f); err != nil {
			return err
		}
		printSuccess("Added %s (%s)", f.Name, f.ID)
		return nil
	},
}

var friendsRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a friend",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/friends/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Removed friend %s", args[0])
		return nil
	},
}

func init() {
	friendsAddCmd.Flags().String("phone", "", "phone number")
	friendsAddCmd.Flags().String("relation", "", "relation, e.g. 邻居")

	friendsCmd.AddCommand(friendsListCmd)
	friendsCmd.AddCommand(friendsAddCmd)
	friendsCmd.AddCommand(friendsRemoveCmd)
}

// --- activities ---

var activitiesCmd = &cobra.Command{
	Use:   "activities",
	Short: "Manage community activities",
}

var activitiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List activities",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/activities")
		if err != nil {
			return err
		}

		var activities []storage.Activity
		if err := decodeJSON(resp, &activities); err != nil {
			return err
		}
		if len(activities) == 0 {
			fmt.Fprintln(os.Stdout, "no activities yet")
			return nil
		}
		for _, a := range activities {
			capacity := "不限"
			if a.Capacity > 0 {
				capacity = fmt.Sprintf("%d/%d", a.Joined, a.Capacity)
			}
			fmt.Fprintf(os.Stdout, "%s  %s  %s  %s  %s\n",
				a.ID, a.Title, a.Location, a.StartsAt.Local().Format("2006-01-02 15:04"), capacity)
		}
		return nil
	},
}

var activitiesAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create an activity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		location, _ := cmd.Flags().GetString("location")
		startsAt, _ := cmd.Flags().GetString("starts-at")
		capacity, _ := cmd.Flags().GetInt("capacity")

		starts := time.Now().Add(24 * time.Hour)
		if startsAt != "" {
			parsed, err := time.ParseInLocation("2006-01-02 15:04", startsAt, time.Local)
			if err != nil {
				return fmt.Errorf("invalid --starts-at, want \"2006-01-02 15:04\": %w", err)
			}
			starts = parsed
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/activities", storage.Activity{
			Title:    args[0],
			Location: location,
			StartsAt: starts.UTC(),
			Capacity: capacity,
		})
		if err != nil {
			return err
		}

		var a storage.Activity
		if err := decodeJSON(resp, &a); err != nil {
			return err
		}
		printSuccess("Created activity %s (%s)", a.Title, a.ID)
		return nil
	},
}

var activitiesJoinCmd = &cobra.Command{
	Use:   "join <id>",
	Short: "Join an activity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/activities/"+args[0]+"/join", nil)
		if err != nil {
			return err
		}

		var a storage.Activity
		if err := decodeJSON(resp, &a); err != nil {
			return err
		}
		printSuccess("Joined %s (%d signed up)", a.Title, a.Joined)
		return nil
	},
}

func init() {
	activitiesAddCmd.Flags().String("location", "", "where the activity happens")
	activitiesAddCmd.Flags().String("starts-at", "", "local start time, e.g. \"2026-09-01 09:00\"")
	activitiesAddCmd.Flags().Int("capacity", 0, "participant limit, 0 for unlimited")

	activitiesCmd.AddCommand(activitiesListCmd)
	activitiesCmd.AddCommand(activitiesAddCmd)
	activitiesCmd.AddCommand(activitiesJoinCmd)
}

// --- health ---

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Manage health records",
}

var healthListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent health records",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/health-records")
		if err != nil {
			return err
		}

		var records []storage.HealthRecord
		if err := decodeJSON(resp, &records); err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Fprintln(os.Stdout, "no health records yet")
			return nil
		}
		for _, rec := range records {
			parts := []string{rec.RecordedAt.Local().Format("2006-01-02")}
			if rec.Systolic > 0 {
				parts = append(parts, fmt.Sprintf("血压 %d/%d", rec.Systolic, rec.Diastolic))
			}
			if rec.HeartRate > 0 {
				parts = append(parts, fmt.Sprintf("心率 %d", rec.HeartRate))
			}
			if rec.WeightKg > 0 {
				parts = append(parts, fmt.Sprintf("体重 %.1fkg", rec.WeightKg))
			}
			if rec.Notes != "" {
				parts = append(parts, rec.Notes)
			}
			fmt.Fprintln(os.Stdout, strings.Join(parts, "  "))
		}
		return nil
	},
}

var healthImportCmd = &cobra.Command{
	Use:   "import <report.pdf>",
	Short: "Import vitals from a checkup report PDF",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/health-records/import", map[string]string{
			"path": path,
		})
		if err != nil {
			return err
		}

		var rec storage.HealthRecord
		if err := decodeJSON(resp, &rec); err != nil {
			return err
		}
		printSuccess("Imported record %s", rec.ID)
		return nil
	},
}

func init() {
	healthCmd.AddCommand(healthListCmd)
	healthCmd.AddCommand(healthImportCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and change configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		view := make(map[string]string)
		for _, info := range config.ShowAll(cfg) {
			view[info.Key] = info.Value
		}
		return enc.Encode(view)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config key",
	Long:  "Set a config key. Run 'qianban config show' to see valid keys.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetKey(args[0], args[1]); err != nil {
			return fmt.Errorf("%w (valid keys: %s)", err, strings.Join(config.ValidKeys(), ", "))
		}
		printSuccess("Set %s = %s", args[0], args[1])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
