package homekit

import (
	"context"
	"fmt"
	"sort"

	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"

	"github.com/egregors/plantdash/internal/session"
	"github.com/egregors/plantdash/log"
)

type HapSrvOpts struct {
	DB  hap.Store
	Pin string

	Bridge *accessory.Bridge
	// Soil moisture of each plant is shown as relative humidity.
	Plants map[session.PlantID]*accessory.Humidifier
}

type HapSrv struct {
	srv    *hap.Server
	plants map[session.PlantID]*accessory.Humidifier
}

func NewHapSrv(opts *HapSrvOpts) (*HapSrv, error) {
	log.Info.Println("make HapSrv")

	ids := make([]int, 0, len(opts.Plants))
	for id := range opts.Plants {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)

	// see: https://github.com/brutella/hap/pull/53
	// accessory ids must stay stable between restarts
	opts.Bridge.A.Id = 1
	as := make([]*accessory.A, 0, len(ids))
	for _, id := range ids {
		a := opts.Plants[session.PlantID(id)]
		a.A.Id = uint64(id) + 1
		as = append(as, a.A)
	}

	s, err := hap.NewServer(opts.DB, opts.Bridge.A, as...)
	if err != nil {
		return nil, fmt.Errorf("can't create hap server: %w", err)
	}

	if opts.Pin != "" {
		log.Info.Printf("set custom PIN")
		s.Pin = opts.Pin
	}

	return &HapSrv{
		srv:    s,
		plants: opts.Plants,
	}, nil
}

// NewPlantAccessories makes one accessory per plant, named "Plant N".
func NewPlantAccessories(plants int) map[session.PlantID]*accessory.Humidifier {
	res := make(map[session.PlantID]*accessory.Humidifier, plants)
	for i := 1; i <= plants; i++ {
		res[session.PlantID(i)] = accessory.NewHumidifier(accessory.Info{
			Name:         fmt.Sprintf("Plant %d", i),
			SerialNumber: "-",
			Manufacturer: "plantdash",
			Model:        "Soil moisture (mock)",
			Firmware:     "-",
		})
	}

	return res
}

// SetMoisture publishes the latest reading of a plant. Unknown plants are ignored.
func (s *HapSrv) SetMoisture(plant session.PlantID, moisture int) {
	a, ok := s.plants[plant]
	if !ok {
		return
	}

	a.Humidifier.CurrentRelativeHumidity.SetValue(float64(moisture))
}

func (s *HapSrv) ListenAndServe(ctx context.Context) error {
	return s.srv.ListenAndServe(ctx)
}
