package vm

// Machine-wide ABI constants. These values are frozen: BIOS and cartridge
// programs are built against them, so changing any of them breaks every
// existing binary.

// Video timing and geometry.
const (
	ScreenWidth     = 640
	ScreenHeight    = 360
	FramesPerSecond = 60
)

// CPU speed.
const (
	CyclesPerSecond = 15_000_000
	CyclesPerFrame  = CyclesPerSecond / FramesPerSecond
)

// GPU capacities. A frame may emit at most PixelCapacityPerFrame pixels;
// the cost model is documented on gpu.DrawCost.
const (
	TextureSize           = 1024
	RegionsPerTexture     = 4096
	PixelCapacityPerFrame = 9 * ScreenWidth * ScreenHeight
	ClearScreenCost       = ScreenWidth * ScreenHeight
)

// SPU capacities and output format.
const (
	SoundChannels   = 16
	SampleRate      = 44_100
	SamplesPerFrame = SampleRate / FramesPerSecond
)

// Memory map, in word addresses. Ranges never overlap.
const (
	RAMBase        = 0x00000000
	RAMSize        = 4 * 1024 * 1024
	BiosBase       = 0x10000000
	BiosMaxSize    = 1024 * 1024
	CartridgeBase  = 0x20000000
	CartridgeMax   = 32 * 1024 * 1024
	MemoryCardBase = 0x30000000
	MemoryCardSize = 256 * 1024
)

// CPU entry points.
const (
	ResetEntryAddress  = BiosBase
	FaultVectorAddress = 8
)

// Control bus port map. Each device owns a contiguous local range starting
// at its base; the null device covers the rest of the port space, from
// NullPortBase up to PortSpaceSize.
const (
	TimerPortBase     = 0x000
	GPUPortBase       = 0x100
	SPUPortBase       = 0x200
	GamepadPortBase   = 0x300
	CartridgePortBase = 0x400
	MemCardPortBase   = 0x500
	NullPortBase      = 0x600
	PortSpaceSize     = 0x1000
)

// Blending modes understood by the GPU and the video sink.
const (
	BlendAlpha    = 0
	BlendAdd      = 1
	BlendSubtract = 2
)

// GPU command codes.
const (
	GPUCommandClearScreen          = 1
	GPUCommandDrawRegion           = 2
	GPUCommandDrawRegionZoomed     = 3
	GPUCommandDrawRegionRotated    = 4
	GPUCommandDrawRegionRotozoomed = 5
)

// SPU command codes.
const (
	SPUCommandPlaySelectedChannel  = 1
	SPUCommandPauseSelectedChannel = 2
	SPUCommandStopSelectedChannel  = 3
	SPUCommandPauseAllChannels     = 4
	SPUCommandResumeAllChannels    = 5
	SPUCommandStopAllChannels      = 6
)

// SPU channel states, readable through the channel state port.
const (
	ChannelStopped = 0
	ChannelPlaying = 1
	ChannelPaused  = 2
)
