package e2e_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/wardenhq/warden/citest/testutil"
	"github.com/wardenhq/warden/pkg/types"
)

var _ = Describe("Policy Enforcement", func() {
	var (
		engine *testutil.Engine
		ws     *testutil.Workspace
	)

	newEngine := func(cfg *types.PolicyConfig) {
		var err error
		engine, err = testutil.NewEngine(testutil.Options{
			Scenario: testutil.Scenario(),
			Policies: cfg,
		})
		Expect(err).NotTo(HaveOccurred())
	}

	BeforeEach(func() {
		var err error
		ws, err = testutil.NewWorkspace()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if engine != nil {
			engine.Close()
		}
		if ws != nil {
			ws.Cleanup()
		}
	})

	Describe("Command Deny List", func() {
		It("should deny a command matching the deny list and keep the session alive", func() {
			newEngine(&types.PolicyConfig{DeniedCommands: []string{"rm -rf"}})

			session, err := engine.CreateSession(ctx, ws.Root)
			Expect(err).NotTo(HaveOccurred())

			turn, err := engine.Orch.SendMessage(ctx, session.ID, "wipe the workspace")
			Expect(err).NotTo(HaveOccurred(), "a denied tool call is not a turn failure")
			Expect(turn.ToolCalls).To(Equal(1))

			calls, err := engine.Store.ListToolCalls(ctx, session.ID, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(calls).To(HaveLen(1))
			Expect(calls[0].Status).To(Equal(types.ToolCallDenied))
			Expect(calls[0].Output).NotTo(BeNil())
			Expect(*calls[0].Output).To(ContainSubstring("Permission denied"))

			decisions, err := engine.Store.ListPolicyDecisions(ctx, session.ID, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(decisions).To(HaveLen(1))
			Expect(decisions[0].Decision).To(Equal(types.DecisionDeny))
			Expect(decisions[0].DecidedBy).To(Equal("command"))
			Expect(decisions[0].Tool).To(Equal("bash"))

			after, err := engine.Orch.Session(ctx, session.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(after.Status).To(Equal(types.StatusActive))
		})
	})

	Describe("Repeat Guard", func() {
		It("should break a loop of identical tool calls at the threshold", func() {
			newEngine(&types.PolicyConfig{RepeatThreshold: 3})

			session, err := engine.CreateSession(ctx, ws.Root)
			Expect(err).NotTo(HaveOccurred())

			turn, err := engine.Orch.SendMessage(ctx, session.ID, "keep building until it works")
			Expect(err).NotTo(HaveOccurred())
			Expect(turn.ToolCalls).To(Equal(5))

			calls, err := engine.Store.ListToolCalls(ctx, session.ID, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(calls).To(HaveLen(5))

			var succeeded, denied int
			for _, call := range calls {
				switch call.Status {
				case types.ToolCallSuccess:
					succeeded++
				case types.ToolCallDenied:
					denied++
				}
			}
			Expect(succeeded).To(Equal(2), "calls below the threshold pass")
			Expect(denied).To(Equal(3), "every call from the threshold on is denied")

			decisions, err := engine.Store.ListPolicyDecisions(ctx, session.ID, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(decisions).To(HaveLen(5))
			for _, dec := range decisions[2:] {
				Expect(dec.Decision).To(Equal(types.DecisionDeny))
				Expect(dec.DecidedBy).To(Equal("repeat_guard"))
			}
		})

		It("should not trip on distinct calls to the same tool", func() {
			newEngine(&types.PolicyConfig{RepeatThreshold: 3})

			session, err := engine.CreateSession(ctx, ws.Root)
			Expect(err).NotTo(HaveOccurred())

			turn, err := engine.Orch.SendMessage(ctx, session.ID, "run the checklist")
			Expect(err).NotTo(HaveOccurred())
			Expect(turn.ToolCalls).To(Equal(10))

			calls, err := engine.Store.ListToolCalls(ctx, session.ID, 0)
			Expect(err).NotTo(HaveOccurred())
			for _, call := range calls {
				Expect(call.Status).To(Equal(types.ToolCallSuccess))
			}
		})
	})
})
