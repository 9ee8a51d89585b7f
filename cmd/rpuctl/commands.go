package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/multierr"

	"github.com/jangala-dev/tinygo-nrf70bus/hal"
	"github.com/jangala-dev/tinygo-nrf70bus/otp"
	"github.com/jangala-dev/tinygo-nrf70bus/rpubus"
)

var errUsage = errors.New("bad arguments")

func run(ctx context.Context, dev *rpubus.Device, hw *hardware, args []string) (err error) {
	if err := dev.Acquire(ctx); err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dev.Release(context.WithoutCancel(ctx))) }()

	switch args[0] {
	case "selftest":
		return selftest(ctx, dev, hw)
	case "read":
		if len(args) != 3 {
			return fmt.Errorf("%w: read <addr> <len>", errUsage)
		}
		addr, err := parseAddr(args[1])
		if err != nil {
			return err
		}
		n, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("%w: length %q", errUsage, args[2])
		}
		p, err := dev.Read(ctx, addr, n)
		if err != nil {
			return err
		}
		fmt.Print(hex.Dump(p))
		return nil
	case "write":
		if len(args) != 3 {
			return fmt.Errorf("%w: write <addr> <hex>", errUsage)
		}
		addr, err := parseAddr(args[1])
		if err != nil {
			return err
		}
		p, err := hex.DecodeString(args[2])
		if err != nil {
			return fmt.Errorf("%w: data: %v", errUsage, err)
		}
		return dev.Write(ctx, addr, p)
	case "status":
		s, err := dev.SleepStatus(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("state:   %v\nchip:    %v\nbus:     %v\nirq:     %v\n",
			dev.State(), s, dev.Transport().Kind(), dev.Power().IRQArmed())
		return nil
	case "otp":
		return dumpOTP(ctx, dev)
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
}

func parseAddr(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: address %q", errUsage, s)
	}
	return uint32(v), nil
}

func step(name string, err error) error {
	status := "ok"
	if err != nil {
		status = "FAIL: " + err.Error()
	}
	fmt.Fprintf(os.Stdout, "%-28s %s\n", name, status)
	return err
}

// selftest walks the bring-up path an upper driver takes.
func selftest(ctx context.Context, dev *rpubus.Device, hw *hardware) error {
	pattern := make([]byte, 64)
	for i := range pattern {
		pattern[i] = byte(i*7 + 1)
	}
	var errs error
	check := func(name string, err error) { errs = multierr.Append(errs, step(name, err)) }

	check("pktram write", dev.Write(ctx, 0x0C0000, pattern))
	got, err := dev.Read(ctx, 0x0C0000, len(pattern))
	if err == nil && !bytes.Equal(got, pattern) {
		err = fmt.Errorf("read back % X", got[:8])
	}
	check("pktram read-back", err)

	got, err = dev.Read(ctx, 0x0C0003, 5)
	if err == nil && !bytes.Equal(got, pattern[3:8]) {
		err = fmt.Errorf("unaligned read % X", got)
	}
	check("pktram unaligned read", err)

	_, err = dev.Read(ctx, hal.ClockEnableAddr, 4)
	check("sysbus high-latency read", err)

	_, err = dev.Read(ctx, 0x100000, 4)
	check("rom read", err)

	err = dev.Write(ctx, 0x100000, []byte{0, 0, 0, 0})
	if errors.Is(err, rpubus.ErrReadOnly) {
		err = nil
	} else if err == nil {
		err = errors.New("rom write accepted")
	}
	check("rom write refused", err)

	check("sleep", dev.Sleep(ctx))
	s, err := dev.SleepStatus(ctx)
	if err == nil && s != rpubus.Asleep {
		err = fmt.Errorf("chip reports %v", s)
	}
	check("asleep", err)

	check("wake", dev.Wake(ctx))
	s, err = dev.SleepStatus(ctx)
	if err == nil && s != rpubus.Awake {
		err = fmt.Errorf("chip reports %v", s)
	}
	check("awake", err)

	if hw.chip != nil {
		fmt.Printf("%-28s %v\n", "bus frequencies (sim)", hw.chip.Frequencies())
	}
	return errs
}

func dumpOTP(ctx context.Context, dev *rpubus.Device) error {
	o := otp.New(dev)
	for idx := 0; idx < 2; idx++ {
		mac, err := o.MAC(ctx, idx)
		switch {
		case errors.Is(err, otp.ErrNotProgrammed):
			fmt.Printf("mac%d:       (blank)\n", idx)
		case err != nil:
			return err
		default:
			fmt.Printf("mac%d:       %s\n", idx, mac)
		}
	}
	id, err := o.UUID(ctx)
	switch {
	case errors.Is(err, otp.ErrNotProgrammed):
		fmt.Println("uuid:       (blank)")
	case err != nil:
		return err
	default:
		fmt.Printf("uuid:       %s\n", id)
	}
	locked, err := o.Protected(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("protected:  %v\n", locked)
	return nil
}
