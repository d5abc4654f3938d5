package trigger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func mustTrigger(t *testing.T, id string, typ Type) *Trigger {
	t.Helper()
	trigger, err := New(id, typ, nil)
	require.NoError(t, err)
	return trigger
}

func TestNew(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		trigger, err := New("deploy_hook", TypeWebhook, map[string]any{"secret": "s3cret"})
		require.NoError(t, err)
		require.Equal(t, "deploy_hook", trigger.ID)
		require.Equal(t, TypeWebhook, trigger.Type)
		require.Equal(t, "s3cret", trigger.Config["secret"])
		require.False(t, trigger.CreatedAt.IsZero())
		require.Nil(t, trigger.LastTriggered)
	})

	t.Run("NilConfigBecomesEmpty", func(t *testing.T) {
		trigger, err := New("manual", TypeManual, nil)
		require.NoError(t, err)
		require.NotNil(t, trigger.Config)
	})

	t.Run("MissingID", func(t *testing.T) {
		_, err := New("", TypeManual, nil)
		require.ErrorIs(t, err, ErrTriggerIDRequired)
	})

	t.Run("InvalidType", func(t *testing.T) {
		_, err := New("bad", Type("telepathy"), nil)
		require.ErrorIs(t, err, ErrInvalidType)
	})
}

func TestFire(t *testing.T) {
	ctx := context.Background()

	t.Run("FansOutToListeners", func(t *testing.T) {
		m := NewManager()
		firedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		m.now = func() time.Time { return firedAt }

		require.NoError(t, m.Register(ctx, mustTrigger(t, "upstream_done", TypeDependency)))
		m.AddListener("upstream_done", "dag_1")
		m.AddListener("upstream_done", "dag_2")

		result, err := m.Fire(ctx, "upstream_done", map[string]any{"source": "dag_0"})
		require.NoError(t, err)
		require.Equal(t, "upstream_done", result.TriggerID)
		require.Equal(t, TypeDependency, result.Type)
		require.Equal(t, firedAt, result.FiredAt)
		require.Equal(t, "dag_0", result.Payload["source"])
		require.Equal(t, []string{"dag_1", "dag_2"}, result.TriggeredDAGs)

		got, err := m.Get("upstream_done")
		require.NoError(t, err)
		require.NotNil(t, got.LastTriggered)
		require.Equal(t, firedAt, *got.LastTriggered)
	})

	t.Run("NoListeners", func(t *testing.T) {
		m := NewManager()
		require.NoError(t, m.Register(ctx, mustTrigger(t, "lonely", TypeManual)))

		result, err := m.Fire(ctx, "lonely", nil)
		require.NoError(t, err)
		require.NotNil(t, result.TriggeredDAGs)
		require.Empty(t, result.TriggeredDAGs)
		require.NotNil(t, result.Payload)
	})

	t.Run("UnknownTrigger", func(t *testing.T) {
		m := NewManager()
		_, err := m.Fire(ctx, "ghost", nil)
		require.ErrorIs(t, err, ErrTriggerNotFound)
	})
}

func TestListeners(t *testing.T) {
	m := NewManager()

	m.AddListener("build_done", "dag_1")
	m.AddListener("build_done", "dag_2")
	m.AddListener("build_done", "dag_1") // duplicate subscription is suppressed
	require.Equal(t, []string{"dag_1", "dag_2"}, m.Listeners("build_done"))

	m.RemoveListener("build_done", "dag_1")
	require.Equal(t, []string{"dag_2"}, m.Listeners("build_done"))

	// Removing an absent membership is a no-op.
	m.RemoveListener("build_done", "dag_9")
	require.Equal(t, []string{"dag_2"}, m.Listeners("build_done"))

	require.Empty(t, m.Listeners("unknown"))
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	m := NewManager()

	require.ErrorIs(t, m.Register(ctx, &Trigger{}), ErrTriggerIDRequired)

	require.NoError(t, m.Register(ctx, mustTrigger(t, "b", TypeManual)))
	require.NoError(t, m.Register(ctx, mustTrigger(t, "a", TypeManual)))
	require.NoError(t, m.Register(ctx, mustTrigger(t, "b", TypeWebhook))) // overwrite

	list := m.List()
	require.Len(t, list, 2)
	require.Equal(t, "b", list[0].ID)
	require.Equal(t, TypeWebhook, list[0].Type)
	require.Equal(t, "a", list[1].ID)
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	require.NoError(t, m.Register(ctx, mustTrigger(t, "copy_me", TypeManual)))

	got, err := m.Get("copy_me")
	require.NoError(t, err)
	got.Config["mutated"] = true

	again, err := m.Get("copy_me")
	require.NoError(t, err)
	require.NotContains(t, again.Config, "mutated")

	_, err = m.Get("ghost")
	require.ErrorIs(t, err, ErrTriggerNotFound)
}
