package central

import "github.com/srg/bletree/tree"

// installCommandRouter registers the single tree-wide listener that reacts to the seven
// transient command insertions, turning the five host-to-backend ones into Backend
// calls. It only reacts to ChildAdded, since
// Command always fires ChildAdded before ChildRemoved and a listener that reacted to
// both would see every command twice.
func (c *AdapterCore) installCommandRouter() {
	c.tree.Listen(func(ev tree.Event) {
		if ev.Kind != tree.ChildAdded || !ev.Node.Kind().IsCommand() {
			return
		}
		c.routeCommand(ev.Node)
	})
}

// routeCommand dispatches one command node to the Backend. It must run on the
// dispatcher goroutine — Command() is called either from a host thread holding no
// dispatcher guarantee (SCAN, DISCOVER_SERVICES, ...) or from inside an apply* method
// already running there (SERVICES_DISCOVERED, NOTIFICATIONS_ARE_ENABLED); either way the
// listener itself runs synchronously on whatever goroutine called Command, which for the
// host-originated kinds means AdapterCore's public methods post to the dispatcher
// *before* calling Command, not the router.
func (c *AdapterCore) routeCommand(cmd *tree.Node) {
	switch cmd.Kind() {
	case tree.KindScan:
		c.routeScan(cmd)
	case tree.KindDiscoverServices:
		c.routeDiscoverServices(cmd)
	case tree.KindDiscoverCharacteristics:
		c.routeDiscoverCharacteristics(cmd)
	case tree.KindEnableNotifications:
		c.routeSubscribe(cmd, false)
	case tree.KindEnableIndications:
		c.routeSubscribe(cmd, true)
	case tree.KindServicesDiscovered, tree.KindNotificationsAreEnabled:
		// Backend-to-host notifications, not host-to-backend requests: nothing to
		// route, the Service/Characteristic children were already set by the
		// apply* method that raised the command.
	}
}

func (c *AdapterCore) routeScan(cmd *tree.Node) {
	start, _ := cmd.GetProperty(tree.PropShouldStart)
	shouldStart, _ := start.AsBoolOK()
	if !shouldStart {
		c.scan.requestStop()
		return
	}
	if c.Status() != tree.StatusPoweredOn {
		return
	}
	filters := make([]string, 0, len(cmd.Children()))
	for _, fc := range cmd.Children() {
		if u, ok := fc.GetProperty(tree.PropUUID); ok {
			if s, ok := u.AsUUIDOK(); ok {
				filters = append(filters, s)
			}
		}
	}
	c.scan.requestStart(filters)
}

func (c *AdapterCore) routeDiscoverServices(cmd *tree.Node) {
	device := cmd.Parent()
	if device == nil || !connectedAddress(device) {
		return
	}
	addr, _ := device.GetProperty(tree.PropAddress)
	_ = c.backend.DiscoverServices(addr.AsString())
}

func (c *AdapterCore) routeDiscoverCharacteristics(cmd *tree.Node) {
	service := cmd.Parent()
	if service == nil {
		return
	}
	device := service.AncestorOfKind(tree.KindDevice)
	if device == nil || !connectedAddress(device) {
		return
	}
	ref, ok := service.BackendRef()
	if !ok {
		return
	}
	_ = c.backend.DiscoverCharacteristics(ref)
}

func (c *AdapterCore) routeSubscribe(cmd *tree.Node, indication bool) {
	char := cmd.Parent()
	if char == nil {
		return
	}
	device := char.AncestorOfKind(tree.KindDevice)
	if device == nil || !connectedAddress(device) {
		return
	}
	ref, ok := char.BackendRef()
	if !ok {
		return
	}
	_ = c.backend.Subscribe(ref, indication)
}

// connectedAddress reports whether device is a Device node with is_connected=true.
// Every host-originated command below Device is a silent no-op without it.
func connectedAddress(device *tree.Node) bool {
	if !device.HasKind(tree.KindDevice) {
		return false
	}
	v, ok := device.GetProperty(tree.PropIsConnected)
	if !ok {
		return false
	}
	b, _ := v.AsBoolOK()
	return b
}
