package wasmhost

// Memory is a host-accessible view of one module's linear memory. Engines
// hand one out per execution context; it replaces raw app-to-native address
// translation, so offsets are always module-local and bounds-checked by the
// implementation.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU32(offset uint32) (uint32, error)
	WriteU32(offset uint32, value uint32) error
}
