package spu

import (
	"sync"

	"github.com/v32emu/v32emu/internal/vm"
)

// Local port numbers, dispatched by the control bus after subtracting the
// SPU's port base. The sound_* registers act on the selected sound and the
// channel_* registers on the selected channel.
const (
	PortCommand = iota
	PortGlobalVolume
	PortSelectedSound
	PortSelectedChannel
	PortSoundLength
	PortSoundPlayWithLoop
	PortSoundLoopStart
	PortSoundLoopEnd
	PortChannelState
	PortChannelAssignedSound
	PortChannelVolume
	PortChannelSpeed
	PortChannelLoopEnabled
	PortChannelPosition
	PortCount
)

// Sound is one pre-decoded sample buffer: interleaved stereo int16 at the
// machine output rate. Length counts sample frames, not int16 values.
type Sound struct {
	Samples      []int16
	Length       int32
	PlayWithLoop bool
	LoopStart    int32
	LoopEnd      int32
}

// NewSound wraps an interleaved stereo buffer. The loop spans the whole
// sound until guest code narrows it.
func NewSound(samples []int16) Sound {
	length := int32(len(samples) / 2)
	end := length - 1
	if end < 0 {
		end = 0
	}
	return Sound{Samples: samples, Length: length, LoopEnd: end}
}

type channel struct {
	assignedSound int32 // -1 selects the BIOS sound
	state         int32
	volume        float32
	speed         float32
	loopEnabled   bool
	position      float64
}

// SPU models the sound processor: 16 mixer channels over a catalogue of
// loaded sounds. Port writes arrive from the CPU thread while the host
// audio callback pulls samples from its own thread, so every entry point
// takes the mutex; a volume or speed change is atomic at channel
// granularity and never applies mid-sample.
type SPU struct {
	mu sync.Mutex

	biosSound       Sound
	cartridgeSounds []Sound

	globalVolume    float32
	selectedSound   int32 // -1 selects the BIOS sound
	selectedChannel int32
	channels        [vm.SoundChannels]channel
}

func New() *SPU {
	s := &SPU{}
	s.Reset()
	return s
}

// Reset restores the power-on register state. Loaded sounds survive; the
// console reloads them itself as part of its own reset.
func (s *SPU) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globalVolume = 1
	s.selectedSound = -1
	s.selectedChannel = 0
	for i := range s.channels {
		s.channels[i] = channel{assignedSound: -1, volume: 1, speed: 1}
	}
}

// LoadBiosSound installs the firmware sound at index -1.
func (s *SPU) LoadBiosSound(snd Sound) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.biosSound = snd
}

// LoadCartridgeSounds installs the cartridge catalogue starting at index 0.
func (s *SPU) LoadCartridgeSounds(sounds []Sound) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cartridgeSounds = sounds
}

// UnloadCartridgeSounds drops the catalogue and silences every channel, so
// no channel keeps playing from a buffer that no longer exists.
func (s *SPU) UnloadCartridgeSounds() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cartridgeSounds = nil
	s.selectedSound = -1
	for i := range s.channels {
		s.channels[i].assignedSound = -1
		s.channels[i].state = vm.ChannelStopped
		s.channels[i].position = 0
	}
}

func (s *SPU) pointedSound() *Sound {
	if s.selectedSound < 0 {
		return &s.biosSound
	}
	return &s.cartridgeSounds[s.selectedSound]
}

func (s *SPU) channelSound(ch *channel) *Sound {
	if ch.assignedSound < 0 {
		return &s.biosSound
	}
	return &s.cartridgeSounds[ch.assignedSound]
}

func (s *SPU) pointedChannel() *channel {
	return &s.channels[s.selectedChannel]
}

func (s *SPU) ReadPort(local int32) vm.Word {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch local {
	case PortGlobalVolume:
		return vm.FloatWord(s.globalVolume)
	case PortSelectedSound:
		return vm.IntWord(s.selectedSound)
	case PortSelectedChannel:
		return vm.IntWord(s.selectedChannel)
	case PortSoundLength:
		return vm.IntWord(s.pointedSound().Length)
	case PortSoundPlayWithLoop:
		return vm.BoolWord(s.pointedSound().PlayWithLoop)
	case PortSoundLoopStart:
		return vm.IntWord(s.pointedSound().LoopStart)
	case PortSoundLoopEnd:
		return vm.IntWord(s.pointedSound().LoopEnd)
	case PortChannelState:
		return vm.IntWord(s.pointedChannel().state)
	case PortChannelAssignedSound:
		return vm.IntWord(s.pointedChannel().assignedSound)
	case PortChannelVolume:
		return vm.FloatWord(s.pointedChannel().volume)
	case PortChannelSpeed:
		return vm.FloatWord(s.pointedChannel().speed)
	case PortChannelLoopEnabled:
		return vm.BoolWord(s.pointedChannel().loopEnabled)
	case PortChannelPosition:
		return vm.IntWord(int32(s.pointedChannel().position))
	}
	// command is write-only
	return 0
}

func (s *SPU) WritePort(local int32, value vm.Word) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch local {
	case PortCommand:
		s.command(value.Int())
	case PortGlobalVolume:
		if value.IsFiniteFloat() {
			s.globalVolume = vm.ClampFloat(value.Float(), 0, 2)
		}
	case PortSelectedSound:
		v := value.Int()
		if v < -1 || v >= int32(len(s.cartridgeSounds)) {
			return
		}
		s.selectedSound = v
	case PortSelectedChannel:
		v := value.Int()
		if v < 0 || v >= vm.SoundChannels {
			return
		}
		s.selectedChannel = v
	case PortSoundLength:
		// read-only
	case PortSoundPlayWithLoop:
		s.pointedSound().PlayWithLoop = value.Bool()
	case PortSoundLoopStart:
		snd := s.pointedSound()
		if snd.Length == 0 {
			return
		}
		v := vm.ClampInt(value.Int(), 0, snd.Length-1)
		if v > snd.LoopEnd {
			v = snd.LoopEnd
		}
		snd.LoopStart = v
	case PortSoundLoopEnd:
		snd := s.pointedSound()
		if snd.Length == 0 {
			return
		}
		v := vm.ClampInt(value.Int(), 0, snd.Length-1)
		if v < snd.LoopStart {
			v = snd.LoopStart
		}
		snd.LoopEnd = v
	case PortChannelState:
		// read-only
	case PortChannelAssignedSound:
		v := value.Int()
		if v < -1 || v >= int32(len(s.cartridgeSounds)) {
			return
		}
		ch := s.pointedChannel()
		// sounds can only be assigned to a stopped channel
		if ch.state != vm.ChannelStopped {
			return
		}
		ch.assignedSound = v
	case PortChannelVolume:
		if value.IsFiniteFloat() {
			s.pointedChannel().volume = vm.ClampFloat(value.Float(), 0, 8)
		}
	case PortChannelSpeed:
		if value.IsFiniteFloat() {
			s.pointedChannel().speed = vm.ClampFloat(value.Float(), 0, 128)
		}
	case PortChannelLoopEnabled:
		s.pointedChannel().loopEnabled = value.Bool()
	case PortChannelPosition:
		ch := s.pointedChannel()
		length := s.channelSound(ch).Length
		if length == 0 {
			ch.position = 0
			return
		}
		// the fractional part resets to zero
		ch.position = float64(vm.ClampInt(value.Int(), 0, length-1))
	}
}

func (s *SPU) command(code int32) {
	switch code {
	case vm.SPUCommandPlaySelectedChannel:
		s.playChannel(s.pointedChannel())
	case vm.SPUCommandPauseSelectedChannel:
		s.pauseChannel(s.pointedChannel())
	case vm.SPUCommandStopSelectedChannel:
		s.stopChannel(s.pointedChannel())
	case vm.SPUCommandPauseAllChannels:
		for i := range s.channels {
			s.pauseChannel(&s.channels[i])
		}
	case vm.SPUCommandResumeAllChannels:
		for i := range s.channels {
			if s.channels[i].state == vm.ChannelPaused {
				s.channels[i].state = vm.ChannelPlaying
			}
		}
	case vm.SPUCommandStopAllChannels:
		for i := range s.channels {
			s.stopChannel(&s.channels[i])
		}
	}
	// unknown command codes are ignored
}

// playChannel starts the channel from the beginning. Playing a paused
// channel retriggers it; use the resume command to continue instead.
func (s *SPU) playChannel(ch *channel) {
	ch.state = vm.ChannelPlaying
	ch.position = 0
}

func (s *SPU) pauseChannel(ch *channel) {
	if ch.state == vm.ChannelPlaying {
		ch.state = vm.ChannelPaused
	}
}

func (s *SPU) stopChannel(ch *channel) {
	ch.state = vm.ChannelStopped
	ch.position = 0
}

// ChannelState reports a channel's state without going through the port
// surface; the console and tests use it.
func (s *SPU) ChannelState(index int32) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channels[index].state
}

// ChannelPosition reports a channel's fractional sample position.
func (s *SPU) ChannelPosition(index int32) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channels[index].position
}

// MixSamples fills dst, an interleaved stereo float32 buffer, with the
// next len(dst)/2 output frames. The host audio callback drives this from
// its own thread; channel state is locked for the duration of the mix.
// Output saturates to [-1, 1].
func (s *SPU) MixSamples(dst []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range dst {
		dst[i] = 0
	}

	frames := len(dst) / 2
	for c := range s.channels {
		ch := &s.channels[c]
		if ch.state != vm.ChannelPlaying {
			continue
		}
		snd := s.channelSound(ch)
		if snd.Length == 0 {
			ch.state = vm.ChannelStopped
			continue
		}
		gain := ch.volume * s.globalVolume
		for f := 0; f < frames; f++ {
			idx := int32(ch.position)
			if idx >= snd.Length {
				idx = snd.Length - 1
			}
			dst[2*f] += float32(snd.Samples[2*idx]) / 32768 * gain
			dst[2*f+1] += float32(snd.Samples[2*idx+1]) / 32768 * gain

			// advance, then wrap or stop
			ch.position += float64(ch.speed)
			if ch.loopEnabled {
				if ch.position >= float64(snd.LoopEnd) {
					span := float64(snd.LoopEnd - snd.LoopStart)
					if span <= 0 {
						ch.position = float64(snd.LoopStart)
					} else {
						over := ch.position - float64(snd.LoopEnd)
						for over >= span {
							over -= span
						}
						ch.position = float64(snd.LoopStart) + over
					}
				}
			} else if ch.position >= float64(snd.Length) {
				ch.state = vm.ChannelStopped
				ch.position = 0
				break
			}
		}
	}

	for i := range dst {
		if dst[i] > 1 {
			dst[i] = 1
		} else if dst[i] < -1 {
			dst[i] = -1
		}
	}
}
