package mongo

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/audiophile/account-core/internal/core/domain"
)

// lookup walks nested bson.D documents by key.
func lookup(t *testing.T, doc bson.D, keys ...string) any {
	t.Helper()
	var cur any = doc
	for _, k := range keys {
		d, ok := cur.(bson.D)
		if !ok {
			t.Fatalf("expected document at %q, got %T", k, cur)
		}
		found := false
		for _, e := range d {
			if e.Key == k {
				cur, found = e.Value, true
				break
			}
		}
		if !found {
			t.Fatalf("key %q not found in %v", k, d)
		}
	}
	return cur
}

func condArgs(t *testing.T, v any) bson.A {
	t.Helper()
	d, ok := v.(bson.D)
	if !ok || len(d) != 1 || d[0].Key != "$cond" {
		t.Fatalf("expected $cond, got %v", v)
	}
	args, ok := d[0].Value.(bson.A)
	if !ok || len(args) != 3 {
		t.Fatalf("expected 3 $cond args, got %v", d[0].Value)
	}
	return args
}

func TestFailedAttemptPipeline_Shape(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	policy := domain.NewLockoutPolicy(3, 15*time.Minute)

	p := failedAttemptPipeline(now, policy)
	if len(p) != 2 {
		t.Fatalf("expected 2 stages, got %d", len(p))
	}

	// Stage 1: restart the count after an elapsed lock, otherwise increment.
	stage1 := p[0]
	if stage1[0].Key != "$set" {
		t.Fatalf("stage 1 must be $set, got %s", stage1[0].Key)
	}
	attempts := condArgs(t, lookup(t, stage1, "$set", "failed_attempts"))
	if attempts[1] != 1 {
		t.Errorf("expired lock must restart the count at 1, got %v", attempts[1])
	}
	inc, ok := attempts[2].(bson.D)
	if !ok || inc[0].Key != "$add" {
		t.Errorf("expected $add for the running count, got %v", attempts[2])
	}
	clearLock := condArgs(t, lookup(t, stage1, "$set", "lockout_until"))
	if clearLock[1] != "$$REMOVE" || clearLock[2] != "$lockout_until" {
		t.Errorf("expired lock must be removed, got %v", clearLock)
	}
	if lookup(t, stage1, "$set", "updated_at") != now {
		t.Error("expected updated_at = now")
	}

	// Stage 2: start a lock once the stage-1 count reaches the threshold.
	stage2 := p[1]
	lock := condArgs(t, lookup(t, stage2, "$set", "lockout_until"))
	and, ok := lock[0].(bson.D)
	if !ok || and[0].Key != "$and" {
		t.Fatalf("expected $and guard, got %v", lock[0])
	}
	guards := and[0].Value.(bson.A)
	gte := guards[0].(bson.D)
	gteArgs := gte[0].Value.(bson.A)
	if gte[0].Key != "$gte" || gteArgs[0] != "$failed_attempts" || gteArgs[1] != policy.Threshold {
		t.Errorf("expected failed_attempts >= %d, got %v", policy.Threshold, gte)
	}
	if guards[1].(bson.D)[0].Key != "$not" {
		t.Errorf("expected an already-locked guard, got %v", guards[1])
	}
	if lock[1] != now.Add(policy.Duration) {
		t.Errorf("expected lock until %v, got %v", now.Add(policy.Duration), lock[1])
	}
	if lock[2] != "$lockout_until" {
		t.Errorf("expected existing lock kept otherwise, got %v", lock[2])
	}
}

func TestFailedAttemptPipeline_Marshals(t *testing.T) {
	p := failedAttemptPipeline(time.Now().UTC(), domain.NewLockoutPolicy(0, 0))
	for i, stage := range p {
		if _, err := bson.Marshal(stage); err != nil {
			t.Fatalf("stage %d does not marshal: %v", i+1, err)
		}
	}
}
