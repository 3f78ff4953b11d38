package e2e_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/wardenhq/warden/citest/testutil"
	"github.com/wardenhq/warden/internal/hook"
	"github.com/wardenhq/warden/internal/orchestrator"
	"github.com/wardenhq/warden/pkg/types"
)

// failingHook errors on every invocation, standing in for an observer
// whose backend is down.
type failingHook struct{}

func (failingHook) Name() string  { return "flaky-observer" }
func (failingHook) Priority() int { return 10 }

func (failingHook) Run(context.Context, *hook.Event) (hook.Result, error) {
	return nil, errors.New("observer offline")
}

// vetoHook rejects every prompt it sees.
type vetoHook struct{}

func (vetoHook) Name() string  { return "gatekeeper" }
func (vetoHook) Priority() int { return 10 }

func (vetoHook) Run(context.Context, *hook.Event) (hook.Result, error) {
	return hook.Result{"continue": false, "reason": "maintenance window"}, nil
}

var _ = Describe("Hook Pipeline", func() {
	var (
		engine *testutil.Engine
		ws     *testutil.Workspace
	)

	BeforeEach(func() {
		var err error
		engine, err = testutil.NewEngine(testutil.Options{Scenario: testutil.Scenario()})
		Expect(err).NotTo(HaveOccurred())
		ws, err = testutil.NewWorkspace()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		engine.Close()
		ws.Cleanup()
	})

	Describe("Failing Hooks", func() {
		It("should keep tool calls flowing when a hook errors every time", func() {
			engine.Hooks.Register(failingHook{}, hook.PreToolUse)

			session, err := engine.CreateSession(ctx, ws.Root)
			Expect(err).NotTo(HaveOccurred())

			turn, err := engine.Orch.SendMessage(ctx, session.ID, "run the checklist")
			Expect(err).NotTo(HaveOccurred())
			Expect(turn.ToolCalls).To(Equal(10))

			calls, err := engine.Store.ListToolCalls(ctx, session.ID, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(calls).To(HaveLen(10))
			for _, call := range calls {
				Expect(call.Status).To(Equal(types.ToolCallSuccess))
			}

			records, err := engine.Store.ListHookExecutions(ctx, session.ID, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(10))
			for _, rec := range records {
				Expect(rec.Event).To(Equal("PreToolUse"))
				Expect(rec.HookName).To(Equal("flaky-observer"))
				Expect(rec.Error).NotTo(BeNil())
				Expect(*rec.Error).To(ContainSubstring("observer offline"))
			}
		})
	})

	Describe("Prompt Veto", func() {
		It("should reject the prompt before any message is persisted", func() {
			engine.Hooks.Register(vetoHook{}, hook.UserPromptSubmit)

			session, err := engine.CreateSession(ctx, ws.Root)
			Expect(err).NotTo(HaveOccurred())

			_, err = engine.Orch.SendMessage(ctx, session.ID, "hello")
			Expect(err).To(MatchError(orchestrator.ErrPromptRejected))
			Expect(err.Error()).To(ContainSubstring("maintenance window"))

			after, err := engine.Orch.Session(ctx, session.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(after.Status).To(Equal(types.StatusActive), "a vetoed prompt is not a turn failure")

			messages, err := engine.Store.ListMessages(ctx, session.ID, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(messages).To(BeEmpty(), "the vetoed prompt must not be persisted")

			records, err := engine.Store.ListHookExecutions(ctx, session.ID, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
			Expect(records[0].HookName).To(Equal("gatekeeper"))
			Expect(records[0].Error).To(BeNil())
		})
	})
})
