package e2e_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/wardenhq/warden/citest/testutil"
	"github.com/wardenhq/warden/pkg/types"
)

var _ = Describe("Session Lifecycle", func() {
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
		if engine != nil {
			engine.Close()
		}
		if ws != nil {
			ws.Cleanup()
		}
	})

	Describe("Tool-Using Turn", func() {
		It("should walk the full status sequence and pair every tool call with its result", func() {
			session, err := engine.CreateSession(ctx, ws.Root)
			Expect(err).NotTo(HaveOccurred())
			Expect(session.Status).To(Equal(types.StatusCreated))

			turn, err := engine.Orch.SendMessage(ctx, session.ID, "please list files")
			Expect(err).NotTo(HaveOccurred())
			Expect(turn.Reply).To(Equal("Here are the files."))
			Expect(turn.ToolCalls).To(Equal(1))

			trail, err := engine.StatusTrail(ctx, session.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(trail).To(Equal([]string{"created", "connecting", "active", "processing", "active"}))

			calls, err := engine.Store.ListToolCalls(ctx, session.ID, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(calls).To(HaveLen(1))
			Expect(calls[0].ToolUseID).To(Equal("toolu_ls"))
			Expect(calls[0].Name).To(Equal("bash"))
			Expect(calls[0].Status).To(Equal(types.ToolCallSuccess))
			Expect(calls[0].Output).NotTo(BeNil())
			Expect(*calls[0].Output).To(ContainSubstring("main.go"))
			Expect(calls[0].Resolved).NotTo(BeNil(), "tool call should be resolved by its matching result")
		})

		It("should accumulate metrics across turns", func() {
			session, err := engine.CreateSession(ctx, ws.Root)
			Expect(err).NotTo(HaveOccurred())

			_, err = engine.Orch.SendMessage(ctx, session.ID, "hello")
			Expect(err).NotTo(HaveOccurred())
			_, err = engine.Orch.SendMessage(ctx, session.ID, "please list files")
			Expect(err).NotTo(HaveOccurred())

			updated, err := engine.Orch.Session(ctx, session.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Metrics.MessageCount).To(Equal(4))
			Expect(updated.Metrics.ToolCallCount).To(Equal(1))
			Expect(updated.Metrics.TurnCount).To(Equal(2))
			Expect(updated.Metrics.InputTokens).To(Equal(int64(36)))
			Expect(updated.Metrics.OutputTokens).To(Equal(int64(14)))

			// One connection serves both turns
			Expect(engine.Runtime.ConnectAttempts()).To(Equal(1))
		})
	})

	Describe("Completion and Archival", func() {
		It("should complete a session and archive its working directory", func() {
			_, err := ws.WriteFile("report.txt", "all green\n")
			Expect(err).NotTo(HaveOccurred())

			session, err := engine.CreateSession(ctx, ws.Root)
			Expect(err).NotTo(HaveOccurred())

			turn, err := engine.Orch.SendMessage(ctx, session.ID, "hello")
			Expect(err).NotTo(HaveOccurred())

			_, err = engine.Orch.Complete(ctx, session.ID, turn.Reply)
			Expect(err).NotTo(HaveOccurred())

			meta, err := engine.Orch.Archive(ctx, session.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(meta.Status).To(Equal(types.ArchiveOK))
			Expect(meta.Path).To(BeAnExistingFile())
			Expect(meta.FileCount).To(Equal(1))

			archived, err := engine.Orch.Session(ctx, session.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(archived.Status).To(Equal(types.StatusArchived))
		})

		It("should refuse to archive a session that is still active", func() {
			session, err := engine.CreateSession(ctx, ws.Root)
			Expect(err).NotTo(HaveOccurred())

			_, err = engine.Orch.SendMessage(ctx, session.ID, "hello")
			Expect(err).NotTo(HaveOccurred())

			_, err = engine.Orch.Archive(ctx, session.ID)
			Expect(err).To(HaveOccurred())

			unchanged, err := engine.Orch.Session(ctx, session.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(unchanged.Status).To(Equal(types.StatusActive))
		})
	})

	Describe("Forking", func() {
		It("should fork a fresh child that runs independently", func() {
			parent, err := engine.CreateSession(ctx, ws.Root)
			Expect(err).NotTo(HaveOccurred())

			_, err = engine.Orch.SendMessage(ctx, parent.ID, "hello")
			Expect(err).NotTo(HaveOccurred())

			child, err := engine.Orch.Fork(ctx, parent.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(child.Status).To(Equal(types.StatusCreated))
			Expect(child.Mode).To(Equal(types.ModeForked))
			Expect(child.ParentID).NotTo(BeNil())
			Expect(*child.ParentID).To(Equal(parent.ID))

			msgs, err := engine.Store.ListMessages(ctx, child.ID, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(BeEmpty(), "forked session should start with no history")

			turn, err := engine.Orch.SendMessage(ctx, child.ID, "hello")
			Expect(err).NotTo(HaveOccurred())
			Expect(turn.Reply).To(Equal("Hello! Ready to help."))

			parentMsgs, err := engine.Store.ListMessages(ctx, parent.ID, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(parentMsgs).To(HaveLen(2), "child turns must not leak into the parent")
		})
	})
})
