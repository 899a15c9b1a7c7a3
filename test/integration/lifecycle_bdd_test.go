//go:build integration

package integration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/focusshift/shiftd/internal/cfgutil"
	"github.com/focusshift/shiftd/internal/domain"
	"github.com/focusshift/shiftd/internal/infra"
	"github.com/focusshift/shiftd/internal/profile"
	"github.com/focusshift/shiftd/internal/session"
	"github.com/focusshift/shiftd/internal/store"
	"github.com/focusshift/shiftd/internal/usecase"
)

const testUDID = "00008110-000248C43C22801E"

// writeFakeControlTool writes a shell script standing in for the real device
// control binary. It logs every invocation, captures installed profiles, and
// reports the given supervision state.
func writeFakeControlTool(dir string, supervised bool) string {
	script := fmt.Sprintf(`#!/bin/sh
log="%s/invocations.log"
echo "$@" >> "$log"
case "$1" in
  list)
    printf 'UDID: %s\tName: Test iPhone\n'
    ;;
  get)
    echo "%t"
    ;;
  install-profile)
    cp "$2" "%s/installed.mobileconfig"
    ;;
  list-apps)
    printf 'ECID: 0x1D34C0\n'
    printf 'com.apple.mobilesafari\tSafari\n'
    printf 'com.burbn.instagram\tInstagram\n'
    ;;
esac
exit 0
`, dir, testUDID, supervised, dir)

	path := filepath.Join(dir, "cfgutil")
	Expect(os.WriteFile(path, []byte(script), 0755)).To(Succeed())
	return path
}

func invocations(dir string) []string {
	data, err := os.ReadFile(filepath.Join(dir, "invocations.log"))
	if err != nil {
		return nil
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

var _ = Describe("Device Lifecycle", func() {
	var (
		tmpDir       string
		orchestrator *usecase.Orchestrator
		guard        *session.Guard
		prefs        *store.EncryptedStore
		ctx          context.Context
	)

	buildStack := func(supervised bool) {
		toolPath := writeFakeControlTool(tmpDir, supervised)

		clock := infra.NewSystemClock()
		var err error
		prefs, err = store.Open(filepath.Join(tmpDir, "data"), clock)
		Expect(err).NotTo(HaveOccurred())

		logger := zap.NewNop()
		client := cfgutil.NewClient(toolPath, cfgutil.NewExecRunner(), logger)
		guard = session.NewGuard(prefs, clock, logger)
		orchestrator = usecase.NewOrchestrator(
			client,
			profile.NewBuilder(),
			guard,
			prefs,
			infra.NewProcessManager(),
			clock,
			logger,
		)
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "shiftd-integration-*")
		Expect(err).NotTo(HaveOccurred())
		ctx = context.Background()
	})

	AfterEach(func() {
		if prefs != nil {
			prefs.Close()
		}
		os.RemoveAll(tmpDir)
	})

	Describe("Detect", func() {
		It("reports the connected device", func() {
			buildStack(true)

			device, err := orchestrator.Detect(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(device).NotTo(BeNil())
			Expect(device.UDID).To(Equal(testUDID))
			Expect(device.Name).To(Equal("Test iPhone"))
		})
	})

	Describe("Shift", func() {
		It("installs the restriction profile on the device", func() {
			buildStack(true)

			Expect(orchestrator.Shift(ctx, 0)).To(Succeed())

			installed, err := os.ReadFile(filepath.Join(tmpDir, "installed.mobileconfig"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(installed)).To(ContainSubstring(profile.Identifier))
			Expect(string(installed)).To(ContainSubstring("com.apple.applicationaccess"))

			Expect(orchestrator.Snapshot().IsShifted).To(BeTrue())
		})

		Context("with a focus duration", func() {
			It("locks the device until the session expires", func() {
				buildStack(true)

				Expect(orchestrator.Shift(ctx, time.Hour)).To(Succeed())

				err := orchestrator.Unshift(ctx)
				var sessionErr *domain.SessionActiveError
				Expect(errors.As(err, &sessionErr)).To(BeTrue())
				Expect(orchestrator.Snapshot().IsShifted).To(BeTrue())
			})
		})
	})

	Describe("Unshift", func() {
		It("removes the profile by identifier", func() {
			buildStack(true)

			Expect(orchestrator.Shift(ctx, 0)).To(Succeed())
			Expect(orchestrator.Unshift(ctx)).To(Succeed())

			calls := invocations(tmpDir)
			Expect(calls).To(ContainElement("remove-profile " + profile.Identifier))
			Expect(orchestrator.Snapshot().IsShifted).To(BeFalse())
		})
	})

	Describe("InstalledApps", func() {
		It("skips the header and parses app records", func() {
			buildStack(true)

			apps, err := orchestrator.InstalledApps(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(apps).To(HaveLen(2))
			Expect(apps[0].BundleID).To(Equal("com.apple.mobilesafari"))
			Expect(apps[1].Name).To(Equal("Instagram"))
		})
	})

	Describe("BootstrapSupervision", func() {
		Context("when the device is not supervised", func() {
			It("runs backup, prepare, and restore in order", func() {
				buildStack(false)

				var steps []string
				err := orchestrator.BootstrapSupervision(ctx, func(step string) {
					steps = append(steps, step)
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(steps).To(HaveLen(4))
				Expect(steps[3]).To(Equal("Setup complete!"))

				var order []string
				for _, call := range invocations(tmpDir) {
					verb := strings.Fields(call)[0]
					if verb == "backup" || verb == "prepare" || verb == "restore" {
						order = append(order, verb)
					}
				}
				Expect(order).To(Equal([]string{"backup", "prepare", "restore"}))
			})
		})

		Context("when the device is already supervised", func() {
			It("fails fast without touching the device", func() {
				buildStack(true)

				err := orchestrator.BootstrapSupervision(ctx, nil)
				Expect(err).To(MatchError(domain.ErrAlreadySupervised))

				for _, call := range invocations(tmpDir) {
					Expect(call).NotTo(HavePrefix("backup"))
					Expect(call).NotTo(HavePrefix("prepare"))
				}
			})
		})
	})

	Describe("RemoveSupervision", func() {
		It("clears persisted schedules and sessions", func() {
			buildStack(true)

			rule := domain.NewSchedule(domain.ActionShift,
				domain.TimeOfDay{Hour: 21, Minute: 0},
				[]domain.Weekday{domain.Monday})
			Expect(prefs.SaveSchedules([]domain.Schedule{rule})).To(Succeed())
			Expect(orchestrator.Shift(ctx, time.Hour)).To(Succeed())

			Expect(orchestrator.RemoveSupervision(ctx)).To(Succeed())

			schedules, err := prefs.LoadSchedules()
			Expect(err).NotTo(HaveOccurred())
			Expect(schedules).To(BeEmpty())

			current, err := guard.Current()
			Expect(err).NotTo(HaveOccurred())
			Expect(current).To(BeNil())

			Expect(orchestrator.Snapshot().IsShifted).To(BeFalse())
		})
	})
})
