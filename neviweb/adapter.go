package neviweb

import (
	"context"
	"fmt"
	"time"
	"unicode"

	"github.com/mbeaudry/homelog/collector"
	"github.com/mbeaudry/homelog/record"
	"go.uber.org/zap"
)

const attrRoomTemperature = "roomTemperature"

// Adapter aggregates the cloud's per-device readings into one temperature
// and one kWh per room, a combined total, and the averaged indoor samples.
type Adapter struct {
	client      Client
	networkName string
	timeout     time.Duration
	logger      *zap.Logger
}

// New creates the device-cloud adapter. networkName selects the gateway;
// leave it empty to take the first gateway on the account.
func New(client Client, networkName string, timeout time.Duration, logger *zap.Logger) *Adapter {
	return &Adapter{client: client, networkName: networkName, timeout: timeout, logger: logger}
}

// Name implements collector.Source.
func (a *Adapter) Name() string { return "neviweb" }

// Timeout implements collector.Source.
func (a *Adapter) Timeout() time.Duration { return a.timeout }

// Fetch logs in, discovers the gateway, walks the room groups and devices,
// and aggregates temperature and energy per room. Logout is always attempted
// on the way out, whatever happened before.
func (a *Adapter) Fetch(ctx context.Context) (*collector.Result, error) {
	if err := a.client.Login(ctx); err != nil {
		return nil, fmt.Errorf("cloud login failed: %w", err)
	}
	defer func() {
		logoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.client.Logout(logoutCtx); err != nil {
			a.logger.Warn("cloud logout failed", zap.Error(err))
		}
	}()

	networks, err := a.client.Networks(ctx)
	if err != nil {
		return nil, err
	}
	networkID, err := a.resolveNetwork(networks)
	if err != nil {
		return nil, err
	}

	groups, err := a.client.Groups(ctx, networkID)
	if err != nil {
		return nil, err
	}
	devices, err := a.client.Devices(ctx, networkID)
	if err != nil {
		return nil, err
	}

	roomByGroup := make(map[int]string, len(groups))
	for _, g := range groups {
		roomByGroup[g.ID] = record.RoomKey(g.Name)
	}

	type roomAgg struct {
		tempSum float64
		tempN   int
		kwh     float64
		hasKwh  bool
	}
	rooms := make(map[string]*roomAgg)
	agg := func(room string) *roomAgg {
		r, ok := rooms[room]
		if !ok {
			r = &roomAgg{}
			rooms[room] = r
		}
		return r
	}

	for _, dev := range devices {
		room, ok := roomByGroup[dev.GroupID]
		if !ok {
			a.logger.Warn("device outside any room group, skipping",
				zap.Int("device", dev.ID), zap.String("name", dev.Name))
			continue
		}

		// Per-device failures are partial data, not cycle errors.
		attrs, err := a.client.DeviceAttributes(ctx, dev.ID, []string{attrRoomTemperature})
		if err != nil {
			a.logger.Warn("failed to read device attributes",
				zap.Int("device", dev.ID), zap.Error(err))
		} else if temp, ok := attrs[attrRoomTemperature]; ok {
			r := agg(room)
			r.tempSum += temp
			r.tempN++
		}

		stats, err := a.client.DeviceHourlyStats(ctx, dev.ID)
		if err != nil {
			a.logger.Warn("failed to read device hourly stats",
				zap.Int("device", dev.ID), zap.Error(err))
		} else if len(stats) > 0 {
			// Last datapoint is the most recent completed hour, in Wh.
			r := agg(room)
			r.kwh += stats[len(stats)-1] / 1000.0
			r.hasKwh = true
		}
	}

	res := &collector.Result{Fields: record.Partial{record.ColKwhNeviweb: record.Null()}}
	totalKwh := 0.0
	haveKwh := false
	for _, g := range groups {
		room := roomByGroup[g.ID]
		res.Fields["temp_"+room] = record.Null()
		res.Fields["kwh_"+room] = record.Null()
		r, ok := rooms[room]
		if !ok {
			continue
		}
		if r.tempN > 0 {
			temp := r.tempSum / float64(r.tempN)
			res.Fields["temp_"+room] = record.Float(temp)
			res.IndoorTemps = append(res.IndoorTemps, temp)
		}
		if r.hasKwh {
			res.Fields["kwh_"+room] = record.Float(r.kwh)
			totalKwh += r.kwh
			haveKwh = true
		}
	}
	if haveKwh {
		res.Fields[record.ColKwhNeviweb] = record.Float(totalKwh)
	}

	a.logger.Info("device cloud readings fetched",
		zap.Int("devices", len(devices)),
		zap.Int("rooms", len(rooms)))
	return res, nil
}

// resolveNetwork picks the gateway by configured name with the historical
// precedence: exact match, then capitalized-first-letter, then
// lowercase-first-letter, then first gateway found. The last rule also
// applies when a configured name matches nothing; the account's first
// gateway is used then, matching long-standing behavior that existing
// installs depend on.
func (a *Adapter) resolveNetwork(networks []Network) (int, error) {
	if len(networks) == 0 {
		return 0, fmt.Errorf("account has no gateway")
	}
	if a.networkName != "" {
		candidates := []string{
			a.networkName,
			upperFirst(a.networkName),
			lowerFirst(a.networkName),
		}
		for _, candidate := range candidates {
			for _, n := range networks {
				if n.Name == candidate {
					return n.ID, nil
				}
			}
		}
		a.logger.Warn("configured gateway name not found, using first gateway",
			zap.String("configured", a.networkName),
			zap.String("using", networks[0].Name))
	}
	return networks[0].ID, nil
}

func upperFirst(s string) string {
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func lowerFirst(s string) string {
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}
