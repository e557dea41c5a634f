package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/antigravity-dev/backplane/internal/contract"
)

type failingStage struct{ name string }

func (s failingStage) Name() string { return s.name }
func (s failingStage) Process(context.Context, *contract.WorkOrder) error {
	return errors.New("scripted failure")
}

func TestStagePipelineRunsAllStages(t *testing.T) {
	pipeline := NewPipeline().
		Add(ValidationStage{}).
		Add(failingStage{name: "doomed"}).
		Add(NewLoggingStage("test", nil)).
		Build()

	wo := contract.NewWorkOrder("diag").Build()
	results := pipeline.Execute(context.Background(), &wo)

	if len(results) != 3 {
		t.Fatalf("ran %d stages, want all 3", len(results))
	}
	if !results[0].Passed || results[1].Passed || !results[2].Passed {
		t.Errorf("results = %+v", results)
	}
	if results[1].Message != "scripted failure" {
		t.Errorf("failure message = %q", results[1].Message)
	}
	if AllPassed(results) {
		t.Error("AllPassed should be false")
	}
}

func TestStagePipelineNames(t *testing.T) {
	builder := NewPipeline().Add(ValidationStage{}).Add(NewRateLimitStage(10))
	if builder.StageCount() != 2 {
		t.Errorf("stage count = %d", builder.StageCount())
	}
	names := builder.Build().StageNames()
	if len(names) != 2 || names[0] != "validation" || names[1] != "rate_limit" {
		t.Errorf("names = %v", names)
	}
}

func TestValidationStage(t *testing.T) {
	good := contract.NewWorkOrder("fine").Build()
	if err := (ValidationStage{}).Process(context.Background(), &good); err != nil {
		t.Errorf("valid order rejected: %v", err)
	}
	bad := contract.NewWorkOrder("").Build()
	if err := (ValidationStage{}).Process(context.Background(), &bad); err == nil {
		t.Error("empty task accepted")
	}
}

func TestRateLimitStage(t *testing.T) {
	stage := NewRateLimitStage(2)
	wo := contract.NewWorkOrder("x").Build()

	for i := 0; i < 2; i++ {
		if err := stage.Process(context.Background(), &wo); err != nil {
			t.Fatalf("run %d rejected: %v", i, err)
		}
	}
	if err := stage.Process(context.Background(), &wo); err == nil {
		t.Error("third run within the window accepted")
	}
}

func TestDeduplicationStage(t *testing.T) {
	stage := NewDeduplicationStage(time.Minute)
	first := contract.NewWorkOrder("same task").Build()
	if err := stage.Process(context.Background(), &first); err != nil {
		t.Fatalf("first order rejected: %v", err)
	}

	// A fresh id with identical content is still a duplicate.
	resubmit := contract.NewWorkOrder("same task").Build()
	if err := stage.Process(context.Background(), &resubmit); err == nil {
		t.Error("duplicate accepted")
	}

	different := contract.NewWorkOrder("other task").Build()
	if err := stage.Process(context.Background(), &different); err != nil {
		t.Errorf("distinct order rejected: %v", err)
	}
}

func TestDeduplicationWindowExpires(t *testing.T) {
	stage := NewDeduplicationStage(10 * time.Millisecond)
	wo := contract.NewWorkOrder("ephemeral").Build()
	if err := stage.Process(context.Background(), &wo); err != nil {
		t.Fatalf("first order rejected: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	again := contract.NewWorkOrder("ephemeral").Build()
	if err := stage.Process(context.Background(), &again); err != nil {
		t.Errorf("expired duplicate rejected: %v", err)
	}
}
