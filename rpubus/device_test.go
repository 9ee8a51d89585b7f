package rpubus_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/sync/errgroup"

	"github.com/jangala-dev/tinygo-nrf70bus/hal"
	"github.com/jangala-dev/tinygo-nrf70bus/memmap"
	"github.com/jangala-dev/tinygo-nrf70bus/rpubus"
	"github.com/jangala-dev/tinygo-nrf70bus/rpusim"
)

var deadbeef = []byte{0xDE, 0xAD, 0xBE, 0xEF}

var _ = Describe("Device", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	for _, kind := range []rpubus.BusKind{rpubus.KindQSPI, rpubus.KindSPI} {
		kind := kind

		Context("over "+kind.String(), func() {
			var r *rig

			BeforeEach(func() {
				r = newRig(kind)
			})

			It("survives a sleep/wake cycle end to end", func() {
				Expect(r.dev.Init(ctx)).To(Succeed())
				Expect(r.dev.State()).To(Equal(rpubus.PoweredOn))
				Expect(r.dev.Enable(ctx)).To(Succeed())
				Expect(r.dev.State()).To(Equal(rpubus.Awake))

				Expect(r.dev.Write(ctx, 0x040000, deadbeef)).To(Succeed())
				Expect(r.dev.Read(ctx, 0x040000, 4)).To(Equal(deadbeef))

				Expect(r.dev.Sleep(ctx)).To(Succeed())
				Expect(r.dev.SleepStatus(ctx)).To(Equal(rpubus.Asleep))
				Expect(r.dev.State()).To(Equal(rpubus.Asleep))

				Expect(r.dev.Wake(ctx)).To(Succeed())
				Expect(r.dev.SleepStatus(ctx)).To(Equal(rpubus.Awake))
				Expect(r.dev.Read(ctx, 0x040000, 4)).To(Equal(deadbeef))

				Expect(r.dev.Disable(ctx)).To(Succeed())
				Expect(r.dev.State()).To(Equal(rpubus.Off))
				Expect(r.railsDown()).To(BeTrue())
				Expect(r.pinsReleased()).To(BeTrue())
			})

			It("turns the RPU clocks on when enabled", func() {
				Expect(r.dev.Init(ctx)).To(Succeed())
				Expect(r.dev.Enable(ctx)).To(Succeed())
				got := make([]byte, 4)
				r.chip.Peek(hal.ClockEnableAddr, got)
				Expect(got).To(Equal([]byte{0x00, 0x01, 0x00, 0x00}))
			})

			It("round-trips data in every writable region", func() {
				Expect(r.dev.Init(ctx)).To(Succeed())
				Expect(r.dev.Enable(ctx)).To(Succeed())
				data := make([]byte, 32)
				for i := range data {
					data[i] = byte(i*7 + 1)
				}
				for _, reg := range memmap.Default.Regions() {
					if reg.ReadOnly {
						continue
					}
					addr := reg.Start + 0x100
					Expect(r.dev.Write(ctx, addr, data)).To(Succeed(), reg.Name)
					Expect(r.dev.Read(ctx, addr, len(data))).To(Equal(data), reg.Name)
					// unaligned window inside what was written
					Expect(r.dev.Read(ctx, addr+3, 9)).To(Equal(data[3:12]), reg.Name)
				}
			})

			It("splices sub-word writes into the containing word", func() {
				Expect(r.dev.Init(ctx)).To(Succeed())
				Expect(r.dev.Enable(ctx)).To(Succeed())
				for _, addr := range []uint32{0x0C0010, 0x040010} {
					for n := 1; n <= 3; n++ {
						Expect(r.dev.Write(ctx, addr, []byte{0x11, 0x22, 0x33, 0x44})).To(Succeed())
						Expect(r.dev.Write(ctx, addr, []byte{0xA0, 0xA1, 0xA2}[:n])).To(Succeed())
						want := []byte{0x11, 0x22, 0x33, 0x44}
						copy(want, []byte{0xA0, 0xA1, 0xA2}[:n])
						Expect(r.dev.Read(ctx, addr, 4)).To(Equal(want))
					}
				}
			})

			It("rejects bad requests before any bus traffic", func() {
				Expect(r.dev.Init(ctx)).To(Succeed())
				Expect(r.dev.Enable(ctx)).To(Succeed())
				r.chip.ResetCounts()

				Expect(r.dev.Write(ctx, 0x100000, deadbeef)).To(MatchError(rpubus.ErrReadOnly))
				Expect(r.dev.Write(ctx, 0x200000, deadbeef)).To(MatchError(rpubus.ErrReadOnly))
				_, err := r.dev.Read(ctx, 0x008FFC, 8)
				Expect(err).To(MatchError(rpubus.ErrNotMapped))
				_, err = r.dev.Read(ctx, 0x0F0FFF-2, 4)
				Expect(err).To(MatchError(rpubus.ErrNotMapped))
				_, err = r.dev.Read(ctx, 0x0C0000, 0)
				Expect(err).To(MatchError(rpubus.ErrInvalidLength))
				Expect(r.chip.Count(rpusim.OpWrite)).To(BeZero())
				Expect(r.chip.Count(rpusim.OpRead)).To(BeZero())

				Expect(testutil.ToFloat64(r.m.Rejected.WithLabelValues("read_only"))).To(Equal(2.0))
				Expect(testutil.ToFloat64(r.m.Rejected.WithLabelValues("not_mapped"))).To(Equal(2.0))
			})

			It("reads ROM", func() {
				Expect(r.dev.Init(ctx)).To(Succeed())
				r.chip.Poke(0x100000, deadbeef)
				Expect(r.dev.Read(ctx, 0x100000, 4)).To(Equal(deadbeef))
			})

			It("refuses unaligned multi-word writes", func() {
				Expect(r.dev.Init(ctx)).To(Succeed())
				Expect(r.dev.Write(ctx, 0x0C0002, deadbeef)).To(MatchError(rpubus.ErrInvalidAlignment))
				Expect(r.dev.Write(ctx, 0x0C0000, make([]byte, 6))).To(MatchError(rpubus.ErrInvalidAlignment))
			})

			It("is not ready before Init", func() {
				_, err := r.dev.Read(ctx, 0x0C0000, 4)
				Expect(err).To(MatchError(rpubus.ErrNotReady))
				Expect(r.dev.Write(ctx, 0x0C0000, deadbeef)).To(MatchError(rpubus.ErrNotReady))
				Expect(r.dev.Wake(ctx)).To(MatchError(rpubus.ErrNotReady))
				_, err = r.dev.SleepStatus(ctx)
				Expect(err).To(MatchError(rpubus.ErrNotReady))
			})

			It("wraps physical failures as bus errors", func() {
				Expect(r.dev.Init(ctx)).To(Succeed())
				r.chip.Fail(rpusim.OpRead, 1, hal.ErrTimeout)
				_, err := r.dev.Read(ctx, 0x0C0000, 4)
				Expect(err).To(MatchError(rpubus.ErrBus))
				var be *rpubus.BusError
				Expect(errors.As(err, &be)).To(BeTrue())
				Expect(be.Kind).To(Equal(rpubus.BusTimeout))
				Expect(r.chip.Count(rpusim.OpRead)).To(Equal(1))
			})

			It("counts transfers by path", func() {
				Expect(r.dev.Init(ctx)).To(Succeed())
				Expect(r.dev.Enable(ctx)).To(Succeed())
				_, _ = r.dev.Read(ctx, 0x0C0000, 8)
				_, _ = r.dev.Read(ctx, 0x040000, 4)
				Expect(testutil.ToFloat64(r.m.Transfers.WithLabelValues("read", "fast"))).To(Equal(1.0))
				Expect(testutil.ToFloat64(r.m.Transfers.WithLabelValues("read", "high_latency"))).To(Equal(1.0))
				Expect(testutil.ToFloat64(r.m.Bytes.WithLabelValues("read"))).To(Equal(12.0))
				Expect(testutil.ToFloat64(r.m.PowerState)).To(Equal(float64(rpubus.Awake)))
			})
		})
	}

	Describe("wake handshake", func() {
		It("is idempotent on an awake chip", func() {
			r := newRig(rpubus.KindQSPI)
			Expect(r.dev.Init(ctx)).To(Succeed())
			r.chip.SetAwake(true)
			Expect(r.dev.Wake(ctx)).To(Succeed())
			Expect(r.dev.Wake(ctx)).To(Succeed())
			Expect(r.dev.State()).To(Equal(rpubus.Awake))
		})

		It("times out within the poll bound when the chip never wakes", func() {
			r := newRig(rpubus.KindQSPI)
			Expect(r.dev.Init(ctx)).To(Succeed())
			r.chip.NeverReady(true)
			r.chip.ResetCounts()

			err := r.dev.Wake(ctx)
			Expect(err).To(MatchError(rpubus.ErrHandshakeTimeout))
			Expect(err).To(MatchError(rpubus.ErrPollExhausted))
			Expect(r.chip.StatusReads(1)).To(BeNumerically("<=", 10))
			Expect(r.chip.StatusReads(2)).To(Equal(1))
			Expect(r.clk.Elapsed()).To(BeNumerically("<=", 9*time.Millisecond+rpubus.DefaultPowerConfig().Tick*2))
			Expect(r.dev.State()).To(Equal(rpubus.PoweredOn))
			Expect(testutil.ToFloat64(r.m.HandshakeTimeouts)).To(Equal(1.0))
		})

		It("restores the bus frequency on success and failure", func() {
			r := newRig(rpubus.KindQSPI)
			Expect(r.dev.Init(ctx)).To(Succeed())
			Expect(r.dev.Wake(ctx)).To(Succeed())
			r.chip.NeverReady(true)
			r.chip.SetAwake(false)
			Expect(r.dev.Wake(ctx)).NotTo(Succeed())
			Expect(r.chip.Frequencies()).To(Equal([]uint32{24_000_000, 8_000_000, 24_000_000, 8_000_000, 24_000_000}))
			Expect(r.t.Frequency()).To(Equal(uint32(24_000_000)))
		})

		It("times out when the wake request is never acknowledged", func() {
			r := newRig(rpubus.KindSPI)
			Expect(r.dev.Init(ctx)).To(Succeed())
			r.chip.DropAck(true)
			r.chip.ResetCounts()
			Expect(r.dev.Wake(ctx)).To(MatchError(rpubus.ErrHandshakeTimeout))
			Expect(r.chip.StatusReads(2)).To(Equal(1))
			Expect(r.chip.StatusReads(1)).To(BeZero())
		})

		It("retries bus errors while polling for the acknowledgement", func() {
			hs := rpubus.DefaultHandshakeConfig()
			hs.Ack.MaxAttempts = 3
			r := newRig(rpubus.KindQSPI, deviceOptions(rpubus.WithHandshakeConfig(hs)))
			Expect(r.dev.Init(ctx)).To(Succeed())
			r.chip.FailStatusRead(2, 2, hal.ErrBusy)
			Expect(r.dev.Wake(ctx)).To(Succeed())
			Expect(r.chip.StatusReads(2)).To(Equal(3))
		})

		It("reports an unacknowledged request that kept failing as a timeout", func() {
			r := newRig(rpubus.KindQSPI)
			Expect(r.dev.Init(ctx)).To(Succeed())
			r.chip.FailStatusRead(2, 1, hal.ErrBusy)
			err := r.dev.Wake(ctx)
			Expect(err).To(MatchError(rpubus.ErrHandshakeTimeout))
			Expect(err).To(MatchError(rpubus.ErrBus))
		})

		It("passes a bus error in the awake poll through", func() {
			r := newRig(rpubus.KindQSPI)
			Expect(r.dev.Init(ctx)).To(Succeed())
			r.chip.FailStatusRead(1, 1, hal.ErrBusy)
			err := r.dev.Wake(ctx)
			Expect(err).To(MatchError(rpubus.ErrBus))
			Expect(errors.Is(err, rpubus.ErrHandshakeTimeout)).To(BeFalse())
			Expect(r.chip.StatusReads(1)).To(Equal(1))
		})

		It("waits for a slow oscillator", func() {
			r := newRig(rpubus.KindSPI, chipOptions(rpusim.WithWakeDelay(3)))
			Expect(r.dev.Init(ctx)).To(Succeed())
			Expect(r.dev.Wake(ctx)).To(Succeed())
			Expect(r.chip.StatusReads(1)).To(Equal(4))
			Expect(testutil.ToFloat64(r.m.HandshakePolls)).To(Equal(5.0))
		})

		It("powers off when Enable cannot wake the chip", func() {
			r := newRig(rpubus.KindQSPI)
			Expect(r.dev.Init(ctx)).To(Succeed())
			r.chip.NeverReady(true)
			Expect(r.dev.Enable(ctx)).To(MatchError(rpubus.ErrHandshakeTimeout))
			Expect(r.dev.State()).To(Equal(rpubus.Off))
			Expect(r.railsDown()).To(BeTrue())
		})
	})

	Describe("power sequencing", func() {
		It("raises BuckEn before IOVDD with a tick after each", func() {
			r := newRig(rpubus.KindQSPI)
			Expect(r.dev.Init(ctx)).To(Succeed())
			Expect(r.rec.Events()).To(Equal([]string{"bucken=0", "iovdd=0", "bucken=1", "iovdd=1"}))
			Expect(r.clk.Sleeps()).To(Equal([]time.Duration{time.Millisecond, time.Millisecond}))
		})

		It("drops the rails in reverse order", func() {
			r := newRig(rpubus.KindQSPI)
			Expect(r.dev.Init(ctx)).To(Succeed())
			Expect(r.dev.Disable(ctx)).To(Succeed())
			Expect(r.rec.Events()[4:]).To(Equal([]string{"iovdd=0", "bucken=0"}))
		})

		It("waits the extra settle time when both rails share a pin", func() {
			r := newRig(rpubus.KindQSPI, sharedRail())
			Expect(r.dev.Power().Shared()).To(BeTrue())
			Expect(r.dev.Init(ctx)).To(Succeed())
			Expect(r.clk.Sleeps()).To(Equal([]time.Duration{time.Millisecond, 5 * time.Millisecond}))
			Expect(r.dev.Disable(ctx)).To(Succeed())
			Expect(r.railsDown()).To(BeTrue())
		})

		It("drops BuckEn when IOVDD cannot be raised", func() {
			r := newRig(rpubus.KindQSPI)
			r.iovdd.FailSet(errors.New("stuck"))
			err := r.dev.Init(ctx)
			Expect(err).To(MatchError(rpubus.ErrGPIO))
			Expect(r.railsDown()).To(BeTrue())
			Expect(r.pinsReleased()).To(BeTrue())
			Expect(r.dev.State()).To(Equal(rpubus.Off))
		})

		It("releases the first rail when claiming the second fails", func() {
			r := newRig(rpubus.KindQSPI)
			r.iovdd.FailConfigure(errors.New("claimed elsewhere"))
			Expect(r.dev.Init(ctx)).To(MatchError(rpubus.ErrGPIO))
			Expect(r.buck.Mode()).To(Equal(hal.PinDisconnected))
			Expect(r.rec.Events()).NotTo(ContainElement("bucken=1"))
		})

		It("attempts every release step and reports all failures", func() {
			r := newRig(rpubus.KindQSPI)
			Expect(r.dev.Init(ctx)).To(Succeed())
			r.buck.FailRelease(errors.New("release bucken"))
			err := r.dev.Disable(ctx)
			Expect(err).To(MatchError(rpubus.ErrGPIO))
			Expect(err.Error()).To(ContainSubstring("release bucken"))
			Expect(r.iovdd.Mode()).To(Equal(hal.PinDisconnected))
			Expect(r.railsDown()).To(BeTrue())
			Expect(r.dev.State()).To(Equal(rpubus.Off))
		})
	})

	Describe("host IRQ", func() {
		It("arms a rising-edge handler and disarms it on Deinit", func() {
			r := newRig(rpubus.KindQSPI)
			Expect(r.dev.Init(ctx)).To(Succeed())
			fired := 0
			Expect(r.dev.IRQRegister(func() { fired++ })).To(Succeed())
			Expect(r.irq.Mode()).To(Equal(hal.PinInput))
			Expect(r.irq.Fire()).To(BeTrue())
			Expect(fired).To(Equal(1))

			Expect(r.dev.IRQRegister(func() {})).To(MatchError(rpubus.ErrGPIO))

			Expect(r.dev.Deinit(ctx)).To(Succeed())
			Expect(r.irq.Armed()).To(BeFalse())
			Expect(r.irq.Mode()).To(Equal(hal.PinDisconnected))
		})

		It("disarms the handler when Enable fails", func() {
			r := newRig(rpubus.KindQSPI)
			Expect(r.dev.Init(ctx)).To(Succeed())
			Expect(r.dev.IRQRegister(func() {})).To(Succeed())
			r.chip.NeverReady(true)
			Expect(r.dev.Enable(ctx)).To(MatchError(rpubus.ErrHandshakeTimeout))
			Expect(r.dev.Power().IRQArmed()).To(BeFalse())
			Expect(r.irq.Armed()).To(BeFalse())
			Expect(r.irq.Mode()).To(Equal(hal.PinDisconnected))
		})

		It("disarms the handler when Init fails", func() {
			r := newRig(rpubus.KindQSPI)
			Expect(r.dev.IRQRegister(func() {})).To(Succeed())
			r.iovdd.FailSet(errors.New("stuck"))
			Expect(r.dev.Init(ctx)).To(MatchError(rpubus.ErrGPIO))
			Expect(r.dev.Power().IRQArmed()).To(BeFalse())
			Expect(r.irq.Fire()).To(BeFalse())
		})

		It("leaves the pin released when arming fails", func() {
			r := newRig(rpubus.KindQSPI)
			r.irq.FailArm(errors.New("no edge detect"))
			Expect(r.dev.IRQRegister(func() {})).To(MatchError(rpubus.ErrGPIO))
			Expect(r.irq.Mode()).To(Equal(hal.PinDisconnected))
			Expect(r.dev.Power().IRQArmed()).To(BeFalse())
		})
	})

	Describe("QSPI transport", func() {
		It("runs the shared clock domain at the lock divider only while locked", func() {
			r := newRig(rpubus.KindQSPI)
			Expect(r.dev.Init(ctx)).To(Succeed())
			Expect(r.dev.Enable(ctx)).To(Succeed())
			Expect(r.div.Value()).To(Equal(uint8(4)))
			Expect(r.div.Sets()).To(ContainElement(uint8(1)))
			Expect(r.chip.Active()).To(BeFalse())
		})

		It("programs the encryption key with the fixed nonce", func() {
			r := newRig(rpubus.KindQSPI)
			Expect(r.dev.Init(ctx)).To(Succeed())
			key := [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
			Expect(r.dev.EnableEncryption(ctx, key)).To(Succeed())
			gotKey, nonce, ok := r.chip.Encryption()
			Expect(ok).To(BeTrue())
			Expect(gotKey).To(Equal(key))
			Expect(nonce).To(Equal(hal.EncryptionNonce))
			Expect(r.t.(*rpubus.QSPI).Encrypted()).To(BeTrue())
		})

		It("ORs the address mask into every physical address", func() {
			cfg := rpubus.DefaultBusConfig()
			cfg.AddrMask = 0x800000
			r := newRig(rpubus.KindQSPI, busConfig(cfg), chipOptions(rpusim.WithAddrMask(0x800000)))
			Expect(r.dev.Init(ctx)).To(Succeed())
			Expect(r.dev.Write(ctx, 0x0C0040, deadbeef)).To(Succeed())
			Expect(r.chip.LastAddr()).To(Equal(uint32(0x8C0040)))
			Expect(r.dev.Read(ctx, 0x0C0040, 4)).To(Equal(deadbeef))
		})

		It("rejects a misaligned address mask", func() {
			cfg := rpubus.DefaultBusConfig()
			cfg.AddrMask = 0x2
			_, err := rpubus.NewQSPI(rpusim.NewChip(), nil, cfg, testLog)
			Expect(err).To(MatchError(rpubus.ErrInvalidAlignment))
		})
	})

	Describe("SPI transport", func() {
		It("rejects an address mask outside the 24-bit frame", func() {
			cfg := rpubus.DefaultBusConfig()
			cfg.AddrMask = 0x1000000
			_, err := rpubus.NewSPI(rpusim.NewChip().SPI(), nil, cfg, testLog)
			Expect(err).To(MatchError(rpubus.ErrBus))
			var be *rpubus.BusError
			Expect(errors.As(err, &be)).To(BeTrue())
			Expect(be.Kind).To(Equal(rpubus.BusInvalidParam))

			cfg.AddrMask = 0x800000
			_, err = rpubus.NewSPI(rpusim.NewChip().SPI(), nil, cfg, testLog)
			Expect(err).NotTo(HaveOccurred())
		})

		It("does not support encryption", func() {
			r := newRig(rpubus.KindSPI)
			Expect(r.dev.Init(ctx)).To(Succeed())
			Expect(r.dev.EnableEncryption(ctx, [16]byte{})).To(MatchError(rpubus.ErrNotSupported))
		})

		It("releases chip select after every frame", func() {
			r := newRig(rpubus.KindSPI)
			Expect(r.dev.Init(ctx)).To(Succeed())
			Expect(r.dev.Write(ctx, 0x0C0000, deadbeef)).To(Succeed())
			Expect(r.cs.Level()).To(BeTrue())
			r.chip.Fail(rpusim.OpRead, 1, hal.ErrBusy)
			_, err := r.dev.Read(ctx, 0x0C0000, 4)
			Expect(err).To(HaveOccurred())
			Expect(r.cs.Level()).To(BeTrue())
		})

		It("rejects configurations without a wake frequency", func() {
			cfg := rpubus.DefaultBusConfig()
			cfg.WakeFrequencyHz = 0
			_, err := rpubus.NewSPI(rpusim.NewChip().SPI(), nil, cfg, testLog)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("shared users", func() {
		It("powers the chip once for concurrent holders", func() {
			r := newRig(rpubus.KindQSPI)
			var eg errgroup.Group
			for i := 0; i < 16; i++ {
				eg.Go(func() error { return r.dev.Acquire(ctx) })
			}
			Expect(eg.Wait()).To(Succeed())
			Expect(r.dev.Users()).To(Equal(int32(16)))
			Expect(r.buck.History()).To(Equal([]bool{false, true}))
			Expect(r.dev.State()).To(Equal(rpubus.Awake))
			Expect(testutil.ToFloat64(r.m.Users)).To(Equal(16.0))

			var rel errgroup.Group
			for i := 0; i < 15; i++ {
				rel.Go(func() error { return r.dev.Release(ctx) })
			}
			Expect(rel.Wait()).To(Succeed())
			Expect(r.dev.State()).To(Equal(rpubus.Awake))

			Expect(r.dev.Release(ctx)).To(Succeed())
			Expect(r.dev.State()).To(Equal(rpubus.Off))
			Expect(r.railsDown()).To(BeTrue())
			Expect(r.dev.Release(ctx)).To(MatchError(rpubus.ErrNotHeld))
		})

		It("does not count a holder whose bring-up failed", func() {
			r := newRig(rpubus.KindQSPI)
			r.chip.NeverReady(true)
			Expect(r.dev.Acquire(ctx)).To(MatchError(rpubus.ErrHandshakeTimeout))
			Expect(r.dev.Users()).To(BeZero())
			Expect(r.railsDown()).To(BeTrue())
		})
	})
})
