package central

import (
	"github.com/srg/bletree/backend"
	"github.com/srg/bletree/tree"
)

// coreSink implements backend.Sink by marshaling every call onto the core's dispatcher
// goroutine before touching the tree. Backends call these methods from whatever
// goroutine their own OS callback landed on.
type coreSink struct {
	core *AdapterCore
}

func (s *coreSink) AdapterStatusChanged(status tree.AdapterStatus) {
	s.core.dispatcher.post(func() { s.core.applyStatusChange(status) })
}

func (s *coreSink) AdvertisementReceived(adv backend.Advertisement) {
	s.core.dispatcher.post(func() { s.core.applyAdvertisement(adv) })
}

func (s *coreSink) ScanStarted() {
	s.core.dispatcher.post(s.core.scan.onScanStarted)
}

func (s *coreSink) ScanStopped() {
	s.core.dispatcher.post(s.core.scan.onScanStopped)
}

func (s *coreSink) ConnectResult(address string, ok bool, maxPDU int) {
	s.core.dispatcher.post(func() { s.core.applyConnectResult(address, ok, maxPDU) })
}

func (s *coreSink) Disconnected(address string) {
	s.core.dispatcher.post(func() { s.core.applyDisconnected(address) })
}

func (s *coreSink) ServicesDiscovered(address string, services []backend.ServiceInfo) {
	s.core.dispatcher.post(func() { s.core.applyServicesDiscovered(address, services) })
}

func (s *coreSink) CharacteristicsDiscovered(serviceRef string, chars []backend.CharacteristicInfo) {
	s.core.dispatcher.post(func() { s.core.applyCharacteristicsDiscovered(serviceRef, chars) })
}

func (s *coreSink) NotificationsEnabled(charRef string) {
	s.core.dispatcher.post(func() { s.core.applyNotificationsEnabled(charRef) })
}

func (s *coreSink) ValueChanged(charRef string, data []byte) {
	// data is only valid for the duration of this call (backend.Sink contract) —
	// copy it before the closure crosses onto the dispatcher goroutine.
	cp := make([]byte, len(data))
	copy(cp, data)
	s.core.dispatcher.post(func() { s.core.applyValueChanged(charRef, cp) })
}

func (s *coreSink) WriteComplete(address, charUUID string, ok bool) {
	s.core.dispatcher.post(func() { s.core.applyWriteComplete(address, charUUID, ok) })
}
