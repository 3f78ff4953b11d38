package e2e_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/wardenhq/warden/citest/testutil"
	"github.com/wardenhq/warden/internal/runtime"
	"github.com/wardenhq/warden/pkg/types"
)

var _ = Describe("Connection Retry", func() {
	var (
		engine *testutil.Engine
		ws     *testutil.Workspace
	)

	newEngine := func(failConnects int) {
		var err error
		engine, err = testutil.NewEngine(testutil.Options{
			Scenario: testutil.FlakyScenario(failConnects),
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

	It("should reach ACTIVE after transient connect failures", func() {
		newEngine(2)

		session, err := engine.CreateSession(ctx, ws.Root)
		Expect(err).NotTo(HaveOccurred())

		turn, err := engine.Orch.SendMessage(ctx, session.ID, "hello")
		Expect(err).NotTo(HaveOccurred())
		Expect(turn.Reply).NotTo(BeEmpty())
		Expect(engine.Runtime.ConnectAttempts()).To(Equal(3))

		after, err := engine.Orch.Session(ctx, session.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(after.Status).To(Equal(types.StatusActive))

		trail, err := engine.StatusTrail(ctx, session.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(trail).NotTo(ContainElement("failed"), "retries within the attempt limit never surface as a failure")
	})

	It("should fail the session when the attempt limit is exhausted", func() {
		newEngine(5)

		session, err := engine.CreateSession(ctx, ws.Root)
		Expect(err).NotTo(HaveOccurred())

		_, err = engine.Orch.SendMessage(ctx, session.ID, "hello")
		Expect(err).To(HaveOccurred())
		var ce *runtime.ConnectError
		Expect(errors.As(err, &ce)).To(BeTrue(), "the terminal error preserves the connect failure")
		Expect(engine.Runtime.ConnectAttempts()).To(Equal(3))

		after, err := engine.Orch.Session(ctx, session.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(after.Status).To(Equal(types.StatusFailed))
		Expect(after.Error).NotTo(BeNil())
		Expect(*after.Error).To(ContainSubstring("connecting session"))
		Expect(after.Metrics.ErrorCount).To(Equal(1))
	})
})
