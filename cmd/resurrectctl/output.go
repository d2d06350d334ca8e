package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/domain"
)

func writeJSON(value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func printJob(job domain.Job, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(job)
	}
	line := fmt.Sprintf("%s %s", job.ID, job.Status)
	if job.CurrentStage != "" {
		line += " " + string(job.CurrentStage)
	}
	if job.ErrorMessage != "" {
		line += " " + job.ErrorMessage
	}
	fmt.Println(line)
	return nil
}

func printJobs(jobs []domain.Job, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(map[string]any{"jobs": jobs})
	}
	fmt.Printf("jobs=%d\n", len(jobs))
	for _, job := range jobs {
		fmt.Printf("%s %-10s %-8s %s\n", job.ID, job.Status, job.CurrentStage, job.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

func printJobDetail(payload jobDetailPayload, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(payload)
	}
	if err := printJob(payload.Job, false); err != nil {
		return err
	}
	for _, entry := range payload.StageLog {
		line := fmt.Sprintf("  %-8s %-9s %5dms", entry.Stage, entry.Status, entry.DurationMs)
		if entry.OutputSummary != "" {
			line += " " + entry.OutputSummary
		}
		if entry.Error != "" {
			line += " error=" + entry.Error
		}
		fmt.Println(line)
	}
	return nil
}

func printEvent(name string, event domain.ProgressEvent, raw json.RawMessage, jsonOutput bool) error {
	if jsonOutput {
		fmt.Println(string(raw))
		return nil
	}
	line := fmt.Sprintf("%s [%s] %s", event.Timestamp.Format(time.RFC3339), name, event.Status)
	if event.Stage != "" {
		line += " " + string(event.Stage)
	}
	if event.Message != "" {
		line += " " + event.Message
	}
	fmt.Println(line)
	return nil
}

func printStatus(payload statusPayload, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(payload)
	}
	fmt.Printf("servers=%d connected=%d calls=%d failures=%d activeJobs=%d droppedEvents=%d\n",
		payload.Stats.Servers,
		payload.Stats.Connected,
		payload.Stats.TotalCalls,
		payload.Stats.TotalFailures,
		len(payload.ActiveJobs),
		payload.DroppedEvents,
	)
	for _, record := range payload.Servers {
		printHealthRecord(record)
	}
	return nil
}

func printHealth(payload healthPayload, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(payload)
	}
	fmt.Printf("status=%s\n", payload.Status)
	for _, record := range payload.Servers {
		printHealthRecord(record)
	}
	return nil
}

func printHealthRecord(record domain.HealthRecord) {
	line := fmt.Sprintf("%s %-12s healthy=%t", record.Server, record.State, record.Healthy)
	if record.LastError != "" {
		line += " " + record.LastError
	}
	fmt.Println(line)
}

func printHooks(hooks []domain.HookRule, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(map[string]any{"hooks": hooks})
	}
	fmt.Printf("hooks=%d\n", len(hooks))
	for _, rule := range hooks {
		fmt.Printf("%s %s %s enabled=%t\n", rule.Name, rule.Event, rule.Action, rule.Enabled)
	}
	return nil
}
