package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/fhaenel/frieda/pkg/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestHistoryWindowAndOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		if err := s.SaveTurn(ctx, "web:1", role, fmt.Sprintf("turn %d", i)); err != nil {
			t.Fatalf("save turn: %v", err)
		}
	}
	if err := s.SaveTurn(ctx, "web:other", models.RoleUser, "unrelated"); err != nil {
		t.Fatal(err)
	}

	history, err := s.History(ctx, "web:1", 20)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 20 {
		t.Fatalf("history length = %d, want 20", len(history))
	}
	if history[0].Content != "turn 5" {
		t.Errorf("oldest retained = %q, want turn 5", history[0].Content)
	}
	if history[19].Content != "turn 24" {
		t.Errorf("newest = %q, want turn 24", history[19].Content)
	}

	if err := s.ClearHistory(ctx, "web:1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	history, err = s.History(ctx, "web:1", 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 0 {
		t.Errorf("history after clear = %d rows", len(history))
	}
}

func TestRememberUpsertsOnCategoryKey(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Remember(ctx, "technik", "editor", "neovim"); err != nil {
		t.Fatal(err)
	}
	if err := s.Remember(ctx, "technik", "editor", "helix"); err != nil {
		t.Fatal(err)
	}
	if err := s.Remember(ctx, "vorlieben", "kaffee", "schwarz"); err != nil {
		t.Fatal(err)
	}

	facts, err := s.RecentFacts(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(facts) != 2 {
		t.Fatalf("facts = %d, want 2 (upsert, not insert)", len(facts))
	}
	for _, f := range facts {
		if f.Key == "editor" && f.Value != "helix" {
			t.Errorf("editor = %q, want updated value", f.Value)
		}
	}

	found, err := s.SearchFacts(ctx, "hel")
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0].Key != "editor" {
		t.Errorf("search = %+v", found)
	}

	removed, err := s.Forget(ctx, "technik", "editor")
	if err != nil || !removed {
		t.Errorf("forget = %v, %v", removed, err)
	}
	removed, err = s.Forget(ctx, "technik", "editor")
	if err != nil || removed {
		t.Errorf("double forget = %v, %v", removed, err)
	}
}

func TestJobsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := Job{Name: "backup", Spec: "0 3 * * *", Command: "tar czf /tmp/b.tgz ~/notes"}
	if err := s.SaveJob(ctx, job); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveJob(ctx, job); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate save = %v, want ErrDuplicate", err)
	}

	jobs, err := s.Jobs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 || jobs[0].Spec != "0 3 * * *" {
		t.Errorf("jobs = %+v", jobs)
	}

	removed, err := s.DeleteJob(ctx, "backup")
	if err != nil || !removed {
		t.Errorf("delete = %v, %v", removed, err)
	}
}

func TestRulesPersistFilterAndConfig(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rule := Rule{
		Name:      "deploy-alert",
		Enabled:   true,
		EventType: "webhook_received",
		Filter:    map[string]any{"source": "webhook:ci", "data.status": "failed"},
		ActionType: "send_notification",
		ActionConfig: map[string]any{
			"message": "Build {{event.data.build}} failed",
		},
	}
	if err := s.SaveRule(ctx, rule); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveRule(ctx, rule); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate rule = %v", err)
	}

	rules, err := s.Rules(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 1 {
		t.Fatalf("rules = %d", len(rules))
	}
	got := rules[0]
	if got.Filter["data.status"] != "failed" {
		t.Errorf("filter = %v", got.Filter)
	}
	if got.ActionConfig["message"] != "Build {{event.data.build}} failed" {
		t.Errorf("action config = %v", got.ActionConfig)
	}

	ok, err := s.SetRuleEnabled(ctx, "deploy-alert", false)
	if err != nil || !ok {
		t.Fatalf("toggle: %v %v", ok, err)
	}
	rules, _ = s.Rules(ctx)
	if rules[0].Enabled {
		t.Error("rule should be disabled")
	}

	ok, err = s.DeleteRule(ctx, "deploy-alert")
	if err != nil || !ok {
		t.Errorf("delete rule = %v, %v", ok, err)
	}
}

func TestWebhookLookup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CreateWebhook(ctx, "ci", "secret-token", "build events"); err != nil {
		t.Fatal(err)
	}
	hook, err := s.WebhookByName(ctx, "ci")
	if err != nil {
		t.Fatal(err)
	}
	if hook.Token != "secret-token" {
		t.Errorf("token = %q", hook.Token)
	}

	_, err = s.WebhookByName(ctx, "nope")
	if !IsNotFound(err) {
		t.Errorf("missing webhook error = %v", err)
	}
}

func TestNotificationLog(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.LogNotification(ctx, "hello", []string{"web", "discord"}); err != nil {
		t.Fatal(err)
	}
	list, err := s.RecentNotifications(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || len(list[0].Channels) != 2 {
		t.Errorf("notifications = %+v", list)
	}
}

func TestProjectsAndTasks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CreateProject(ctx, "garden", "balcony garden plan"); err != nil {
		t.Fatal(err)
	}
	if err := s.AddTask(ctx, "garden", "buy soil"); err != nil {
		t.Fatal(err)
	}
	if err := s.AddTask(ctx, "garden", "plant tomatoes"); err != nil {
		t.Fatal(err)
	}

	tasks, err := s.Tasks(ctx, "garden")
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 2 {
		t.Fatalf("tasks = %d", len(tasks))
	}

	ok, err := s.CompleteTask(ctx, tasks[0].ID)
	if err != nil || !ok {
		t.Fatalf("complete: %v %v", ok, err)
	}
	tasks, _ = s.Tasks(ctx, "garden")
	if !tasks[0].Done {
		t.Error("task 0 should be done")
	}

	ok, err = s.DeleteProject(ctx, "garden")
	if err != nil || !ok {
		t.Fatalf("delete project: %v %v", ok, err)
	}
	if _, err := s.Tasks(ctx, "garden"); err != nil {
		t.Fatalf("tasks after delete: %v", err)
	}
}
