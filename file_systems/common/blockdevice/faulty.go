package blockdevice

import (
	"fmt"

	"github.com/dargueta/simfs/errors"
	c "github.com/dargueta/simfs/file_systems/common"
)

// Fault describes when a [FaultyDevice] fails.
type Fault struct {
	// FailAfterWrites makes every sector write fail once this many writes have
	// succeeded. -1 disables it.
	FailAfterWrites int
	// FailSectors lists sectors that can't be read or written.
	FailSectors []c.PhysicalBlock
	FailOnLoad  bool
	FailOnSave  bool
	// Err is the cause attached to injected failures.
	Err error
}

// FaultyDevice wraps a [Device] and injects I/O errors, for testing how callers
// handle a device failing partway through an operation.
type FaultyDevice struct {
	Device
	fault  Fault
	writes int
}

// NewFaultyDevice wraps `device`. No faults are injected until [FaultyDevice.SetFault]
// is called.
func NewFaultyDevice(device Device) *FaultyDevice {
	return &FaultyDevice{
		Device: device,
		fault:  Fault{FailAfterWrites: -1},
	}
}

// SetFault replaces the fault rule and resets the write counter.
func (f *FaultyDevice) SetFault(fault Fault) {
	if fault.Err == nil {
		fault.Err = fmt.Errorf("injected fault")
	}
	f.fault = fault
	f.writes = 0
}

// ClearFault stops injecting errors.
func (f *FaultyDevice) ClearFault() {
	f.SetFault(Fault{FailAfterWrites: -1})
}

// Writes gives the number of successful sector writes since the fault was set.
func (f *FaultyDevice) Writes() int {
	return f.writes
}

func (f *FaultyDevice) injected(format string, args ...any) error {
	return errors.Wrap(errors.NewFromError(errors.EIO, f.fault.Err), format, args...)
}

func (f *FaultyDevice) sectorFails(index c.PhysicalBlock) bool {
	for _, sector := range f.fault.FailSectors {
		if sector == index {
			return true
		}
	}
	return false
}

func (f *FaultyDevice) ReadSector(index c.PhysicalBlock, buffer []byte) error {
	if f.sectorFails(index) {
		return f.injected("reading sector %d", index)
	}
	return f.Device.ReadSector(index, buffer)
}

func (f *FaultyDevice) WriteSector(index c.PhysicalBlock, buffer []byte) error {
	if f.fault.FailAfterWrites >= 0 && f.writes >= f.fault.FailAfterWrites {
		return f.injected("writing sector %d after %d writes", index, f.writes)
	}
	if f.sectorFails(index) {
		return f.injected("writing sector %d", index)
	}

	if err := f.Device.WriteSector(index, buffer); err != nil {
		return err
	}
	f.writes++
	return nil
}

func (f *FaultyDevice) Load(path string) error {
	if f.fault.FailOnLoad {
		return f.injected("loading %q", path)
	}
	return f.Device.Load(path)
}

func (f *FaultyDevice) Save(path string) error {
	if f.fault.FailOnSave {
		return f.injected("saving %q", path)
	}
	return f.Device.Save(path)
}
