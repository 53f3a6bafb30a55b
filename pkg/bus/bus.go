// Package bus provides register-oriented access to a device on a serial bus.
//
// Every operation either fully succeeds or returns an error wrapping
// hwerr.ErrTransport; there is no partial-success contract.
package bus

// Bus is a byte-addressed register interface to one device.
type Bus interface {
	WriteRegister(reg, value byte) error
	ReadRegister(reg byte) (byte, error)
	ReadBlock(reg byte, n int) ([]byte, error)
}

// Write is one register write recorded by Sim.
type Write struct {
	Reg   byte
	Value byte
}
