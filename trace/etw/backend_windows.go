//go:build windows

package etw

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"syscall"
	"unsafe"

	"github.com/saqw3r/InetMonitor/model"
	"github.com/saqw3r/InetMonitor/trace"
	"golang.org/x/sys/windows"
)

var (
	advapi32            = windows.NewLazySystemDLL("advapi32.dll")
	tdh                 = windows.NewLazySystemDLL("tdh.dll")
	procStartTraceW     = advapi32.NewProc("StartTraceW")
	procControlTraceW   = advapi32.NewProc("ControlTraceW")
	procEnableTraceEx2  = advapi32.NewProc("EnableTraceEx2")
	procOpenTraceW      = advapi32.NewProc("OpenTraceW")
	procProcessTrace    = advapi32.NewProc("ProcessTrace")
	procCloseTrace      = advapi32.NewProc("CloseTrace")
	procTdhGetEventInfo = tdh.NewProc("TdhGetEventInformation")
	procTdhGetPropSize  = tdh.NewProc("TdhGetPropertySize")
	procTdhGetProperty  = tdh.NewProc("TdhGetProperty")
)

const (
	wnodeFlagTracedGUID      = 0x00020000
	eventTraceRealTimeMode   = 0x00000100
	processTraceModeRealTime = 0x00000100
	processTraceModeEventRec = 0x10000000
	traceLevelInformation    = 4
	controlTraceStop         = 1
	invalidProcessTraceHandle = 0xFFFFFFFFFFFFFFFF
)

// backend implements trace.Backend against the real advapi32/tdh ABI. Only
// the session-lifecycle surface spec.md §4.1/§6 names is exposed; the
// struct layouts below mirror the public ETW ABI (EVENT_TRACE_PROPERTIES,
// EVENT_TRACE_LOGFILEW, EVENT_RECORD, TRACE_EVENT_INFO) closely enough to
// marshal the calls, but this file is the one narrow place in the codebase
// that speaks the vendor ABI — by design, per spec.md §1 treating that ABI
// as an external collaborator.
type backend struct {
	mu            sync.Mutex
	sessionName   string
	sessionHandle uint64
	traceHandle   uint64
	properties    []byte

	startTraceErr   atomic.Uint32
	enableErr       atomic.Uint32
	openTraceErr    atomic.Uint32
	processTraceErr atomic.Uint32

	stopping atomic.Bool
}

// NewBackend returns the Windows ETW implementation of trace.Backend.
func NewBackend() trace.Backend {
	return &backend{}
}

var _ trace.Backend = (*backend)(nil)

// eventTraceProperties mirrors EVENT_TRACE_PROPERTIES plus the two
// trailing wide-string buffers (LoggerName, LogFileName) ETW requires
// immediately after the fixed struct.
type eventTraceProperties struct {
	wnode               wnode
	bufferSize          uint32
	minimumBuffers      uint32
	maximumBuffers      uint32
	maximumFileSize     uint32
	logFileMode         uint32
	flushTimer          uint32
	enableFlags         uint32
	ageLimit            int32
	numberOfBuffers     uint32
	freeBuffers         uint32
	eventsLost          uint32
	buffersWritten      uint32
	logBuffersLost      uint32
	realTimeBuffersLost uint32
	loggerThreadID      uintptr
	logFileNameOffset   uint32
	loggerNameOffset    uint32
}

type wnode struct {
	bufferSize    uint32
	providerID    uint32
	historicalCtx uint64
	timeStamp     int64
	guid          windows.GUID
	clientContext uint32
	flags         uint32
}

// eventDescriptor mirrors EVENT_DESCRIPTOR.
type eventDescriptor struct {
	id      uint16
	version uint8
	channel uint8
	level   uint8
	opcode  uint8
	task    uint16
	keyword uint64
}

// eventHeader mirrors EVENT_HEADER.
type eventHeader struct {
	size          uint16
	headerType    uint16
	flags         uint16
	eventProperty uint16
	threadID      uint32
	processID     uint32
	timeStamp     int64
	providerID    windows.GUID
	descriptor    eventDescriptor
	processorTime uint64
	activityID    windows.GUID
}

// etwBufferContext mirrors ETW_BUFFER_CONTEXT.
type etwBufferContext struct {
	processorIndex uint16
	loggerID       uint16
}

// eventRecord mirrors EVENT_RECORD, the struct ProcessTrace hands to the
// registered EventRecordCallback for every delivered event.
type eventRecord struct {
	header            eventHeader
	bufferContext     etwBufferContext
	extendedDataCount uint16
	userDataLength    uint16
	extendedData      uintptr
	userData          uintptr
	userContext       uintptr
}

// eventTraceHeader mirrors EVENT_TRACE_HEADER, embedded in EVENT_TRACE
// below. Never populated by this code; it only needs the right size so the
// fields declared after it in eventTraceLogfileW land at ABI-correct
// offsets.
type eventTraceHeader struct {
	size           uint16
	fieldTypeFlags uint16
	version        uint32
	threadID       uint32
	processID      uint32
	timeStamp      int64
	guid           windows.GUID
	processorTime  uint64
}

// eventTrace mirrors EVENT_TRACE, the CurrentEvent field of
// EVENT_TRACE_LOGFILEW. Output-only; never populated here.
type eventTrace struct {
	header           eventTraceHeader
	instanceID       uint32
	parentInstanceID uint32
	parentGUID       windows.GUID
	mofData          uintptr
	mofLength        uint32
	clientContext    uint32
}

// traceLogfileHeader mirrors TRACE_LOGFILE_HEADER, the LogfileHeader field
// of EVENT_TRACE_LOGFILEW. Output-only; never populated here. windows.
// Timezoneinformation stands in for TIME_ZONE_INFORMATION.
type traceLogfileHeader struct {
	bufferSize         uint32
	version            uint32
	providerVersion    uint32
	numberOfProcessors uint32
	endTime            int64
	timerResolution    uint32
	maximumFileSize    uint32
	logFileMode        uint32
	buffersWritten     uint32
	startBuffers       uint32
	pointerSize        uint32
	eventsLost         uint32
	cpuSpeedInMHz      uint32
	loggerName         *uint16
	logFileName        *uint16
	timeZone           windows.Timezoneinformation
	bootTime           int64
	perfFreq           int64
	startTime          int64
	reservedFlags      uint32
	buffersLost        uint32
}

// eventTraceLogfileW mirrors EVENT_TRACE_LOGFILEW. For real-time
// consumption (OpenTrace with LogFileName == nil), LoggerName names the
// session, logFileMode doubles as ProcessTraceMode, and eventCallback
// doubles as EventRecordCallback — the same two unions the real ABI
// declares.
type eventTraceLogfileW struct {
	logFileName    *uint16
	loggerName     *uint16
	currentTime    int64
	buffersRead    uint32
	logFileMode    uint32
	currentEvent   eventTrace
	logfileHeader  traceLogfileHeader
	bufferCallback uintptr
	bufferSize     uint32
	filled         uint32
	eventsLost     uint32
	eventCallback  uintptr
	isKernelTrace  uint32
	context        uintptr
}

func (b *backend) Open(sessionName string, providers []trace.Provider) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessionName = sessionName

	nameU16, _ := windows.UTF16FromString(sessionName)
	bufSize := uint32(unsafe.Sizeof(eventTraceProperties{})) + uint32(len(nameU16)*2) + 1024
	buf := make([]byte, bufSize)
	props := (*eventTraceProperties)(unsafe.Pointer(&buf[0]))
	props.wnode.bufferSize = bufSize
	props.wnode.flags = wnodeFlagTracedGUID
	props.logFileMode = eventTraceRealTimeMode
	props.loggerNameOffset = uint32(unsafe.Sizeof(eventTraceProperties{}))

	r1, _, _ := procStartTraceW.Call(
		uintptr(unsafe.Pointer(&b.sessionHandle)),
		uintptr(unsafe.Pointer(stringToUTF16Ptr(sessionName))),
		uintptr(unsafe.Pointer(props)),
	)
	b.startTraceErr.Store(uint32(r1))
	if r1 != 0 {
		return fmt.Errorf("StartTraceW failed: code %d", r1)
	}
	b.properties = buf

	var enableErrs []error
	for _, p := range providers {
		guid := windows.GUID{
			Data1: binary.LittleEndian.Uint32(p.GUID[0:4]),
			Data2: binary.LittleEndian.Uint16(p.GUID[4:6]),
			Data3: binary.LittleEndian.Uint16(p.GUID[6:8]),
		}
		copy(guid.Data4[:], p.GUID[8:16])

		r2, _, _ := procEnableTraceEx2.Call(
			uintptr(b.sessionHandle),
			uintptr(unsafe.Pointer(&guid)),
			1, // EVENT_CONTROL_CODE_ENABLE_PROVIDER
			traceLevelInformation,
			0xFFFFFFFFFFFFFFFF, // match-any-keyword mask, per §6
			0,
			0,
			0,
		)
		b.enableErr.Store(uint32(r2))
		if r2 != 0 {
			enableErrs = append(enableErrs, fmt.Errorf("enable provider %s: code %d", p.Name, r2))
		}
	}
	// A single provider failing to enable is degraded, not fatal: parsing
	// simply proceeds on the remaining ones (§7).
	if len(enableErrs) == len(providers) {
		return fmt.Errorf("no providers enabled: %v", enableErrs)
	}
	return nil
}

func (b *backend) Process(sink trace.Sink) error {
	loggerNameU16, err := windows.UTF16PtrFromString(b.sessionName)
	if err != nil {
		return fmt.Errorf("encode session name: %w", err)
	}

	cb := windows.NewCallback(func(eventRecordPtr uintptr) uintptr {
		if b.stopping.Load() {
			return 0
		}
		if ev, ok := decodeEventRecord(eventRecordPtr); ok {
			sink(ev)
		}
		return 0
	})

	var logfile eventTraceLogfileW
	logfile.loggerName = loggerNameU16
	logfile.logFileMode = processTraceModeRealTime | processTraceModeEventRec
	logfile.eventCallback = cb

	r1, _, _ := procOpenTraceW.Call(uintptr(unsafe.Pointer(&logfile)))
	b.openTraceErr.Store(uint32(r1))
	if r1 == invalidProcessTraceHandle {
		return fmt.Errorf("OpenTraceW failed")
	}
	b.traceHandle = uint64(r1)

	r2, _, _ := procProcessTrace.Call(
		uintptr(unsafe.Pointer(&b.traceHandle)),
		1,
		0,
		0,
	)
	b.processTraceErr.Store(uint32(r2))
	if r2 != 0 && !b.stopping.Load() {
		return fmt.Errorf("ProcessTrace failed: code %d", r2)
	}
	return nil
}

func (b *backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopping.Store(true)

	if b.traceHandle != 0 {
		procCloseTrace.Call(uintptr(b.traceHandle))
		b.traceHandle = 0
	}
	if b.sessionHandle != 0 && len(b.properties) > 0 {
		procControlTraceW.Call(
			uintptr(b.sessionHandle),
			0,
			uintptr(unsafe.Pointer(&b.properties[0])),
			controlTraceStop,
		)
		b.sessionHandle = 0
	}
	return nil
}

func (b *backend) LastErrors() model.TraceDiagnostics {
	return model.TraceDiagnostics{
		LastStartTraceError:   b.startTraceErr.Load(),
		LastEnableError:       b.enableErr.Load(),
		LastOpenTraceError:    b.openTraceErr.Load(),
		LastProcessTraceError: b.processTraceErr.Load(),
	}
}

// traceEventInfoHeader mirrors the fixed-size prefix of TRACE_EVENT_INFO,
// the buffer TdhGetEventInformation fills. EventPropertyInfoArray, the
// struct's flexible tail, is read by indexing past unsafe.Sizeof(this) by
// hand rather than declared as a Go field.
type traceEventInfoHeader struct {
	providerGUID          windows.GUID
	eventGUID             windows.GUID
	descriptor            eventDescriptor
	decodingSource        uint32
	providerNameOffset    uint32
	levelNameOffset       uint32
	channelNameOffset     uint32
	keywordsNameOffset    uint32
	taskNameOffset        uint32
	opcodeNameOffset      uint32
	eventMessageOffset    uint32
	providerMessageOffset uint32
	binaryXMLOffset       uint32
	binaryXMLSize         uint32
	eventNameOffset       uint32
	eventAttributesOffset uint32
	propertyCount         uint32
	topLevelPropertyCount uint32
	flags                 uint32
}

// eventPropertyInfo mirrors EVENT_PROPERTY_INFO. Only NameOffset is read;
// the in/out-type union fields are left for TdhGetProperty itself to
// interpret.
type eventPropertyInfo struct {
	flags      uint32
	nameOffset uint32
	typeUnionA uint16
	typeUnionB uint16
	typeUnionC uint32
	count      uint16
	length     uint16
	reserved   uint32
}

// decodeEventRecord reads an EVENT_RECORD via TdhGetEventInformation and
// converts it into a model.RawEvent: the provider GUID, event id, process
// id and timestamp come straight off the record's EVENT_HEADER; TaskName
// and OpcodeName are read out of TRACE_EVENT_INFO's name-offset table; each
// top-level property is resolved to a name the same way and then fetched
// by value via readTdhProperty, mirroring the original TraceParser::Parse's
// per-property PROPERTY_DATA_DESCRIPTOR use. Schema discovery (which
// property is the size field, which is the address field) happens one
// layer up in parser.Parser — this function's only job is to surface every
// property TDH reports, by name and raw bytes, so the parser can decide.
func decodeEventRecord(eventRecordPtr uintptr) (model.RawEvent, bool) {
	rec := (*eventRecord)(unsafe.Pointer(eventRecordPtr))

	var bufSize uint32
	procTdhGetEventInfo.Call(eventRecordPtr, 0, 0, 0, uintptr(unsafe.Pointer(&bufSize)))
	if bufSize == 0 {
		return model.RawEvent{}, false
	}
	info := make([]byte, bufSize)
	r, _, _ := procTdhGetEventInfo.Call(eventRecordPtr, 0, 0, uintptr(unsafe.Pointer(&info[0])), uintptr(unsafe.Pointer(&bufSize)))
	if r != 0 {
		return model.RawEvent{}, false
	}
	tei := (*traceEventInfoHeader)(unsafe.Pointer(&info[0]))

	// EVENT_HEADER.TimeStamp is a FILETIME (100ns ticks since 1601);
	// RawEvent.Timestamp carries unix seconds.
	ev := model.RawEvent{
		EventID:    rec.header.descriptor.id,
		Timestamp:  (rec.header.timeStamp - 116444736000000000) / 10000000,
		ProcessID:  rec.header.processID,
		TaskName:   utf16StringAt(info, tei.taskNameOffset),
		OpcodeName: utf16StringAt(info, tei.opcodeNameOffset),
	}
	copy(ev.ProviderID[:], guidToBytes(rec.header.providerID)[:])

	propInfoBase := uint32(unsafe.Sizeof(traceEventInfoHeader{}))
	propInfoStride := uint32(unsafe.Sizeof(eventPropertyInfo{}))
	props := make([]model.RawProperty, 0, tei.topLevelPropertyCount)
	for i := uint32(0); i < tei.topLevelPropertyCount; i++ {
		off := propInfoBase + i*propInfoStride
		if off+propInfoStride > uint32(len(info)) {
			break
		}
		p := (*eventPropertyInfo)(unsafe.Pointer(&info[off]))
		name := utf16StringAt(info, p.nameOffset)
		if name == "" {
			continue
		}
		if raw, ok := readTdhProperty(eventRecordPtr, name); ok {
			props = append(props, model.RawProperty{Name: name, Bytes: raw})
		}
	}
	ev.Properties = props
	return ev, true
}

// readTdhProperty fetches one named property's raw bytes via
// TdhGetPropertySize + TdhGetProperty. It takes no lock of its own; its
// only caller is decodeEventRecord, which runs inside the ProcessTrace
// callback.
func readTdhProperty(eventRecordPtr uintptr, name string) ([]byte, bool) {
	nameU16, err := windows.UTF16FromString(name)
	if err != nil {
		return nil, false
	}
	descriptor := struct {
		propertyName uint64
		arrayIndex   uint32
		reserved     uint32
	}{
		propertyName: uint64(uintptr(unsafe.Pointer(&nameU16[0]))),
		arrayIndex:   0xFFFFFFFF,
	}

	var propSize uint32
	r, _, _ := procTdhGetPropSize.Call(
		eventRecordPtr, 0, 0, 1,
		uintptr(unsafe.Pointer(&descriptor)),
		uintptr(unsafe.Pointer(&propSize)),
	)
	if r != 0 || propSize == 0 {
		return nil, false
	}

	out := make([]byte, propSize)
	r2, _, _ := procTdhGetProperty.Call(
		eventRecordPtr, 0, 0, 1,
		uintptr(unsafe.Pointer(&descriptor)),
		uintptr(propSize),
		uintptr(unsafe.Pointer(&out[0])),
	)
	if r2 != 0 {
		return nil, false
	}
	return out, true
}

// utf16StringAt reads a NUL-terminated UTF-16 string starting offset bytes
// into buf, the convention TRACE_EVENT_INFO's *NameOffset fields use.
func utf16StringAt(buf []byte, offset uint32) string {
	if offset == 0 || int(offset) >= len(buf) {
		return ""
	}
	base := (*uint16)(unsafe.Pointer(&buf[offset]))
	max := (len(buf) - int(offset)) / 2
	u16 := unsafe.Slice(base, max)
	n := 0
	for n < len(u16) && u16[n] != 0 {
		n++
	}
	return windows.UTF16ToString(u16[:n])
}

// guidToBytes packs a windows.GUID the same way Open's providers are
// unpacked: Data1/Data2/Data3 little-endian, Data4 verbatim.
func guidToBytes(g windows.GUID) [16]byte {
	var b [16]byte
	binary.LittleEndian.PutUint32(b[0:4], g.Data1)
	binary.LittleEndian.PutUint16(b[4:6], g.Data2)
	binary.LittleEndian.PutUint16(b[6:8], g.Data3)
	copy(b[8:16], g.Data4[:])
	return b
}

func stringToUTF16Ptr(s string) *uint16 {
	p, err := syscall.UTF16PtrFromString(s)
	if err != nil {
		return nil
	}
	return p
}
