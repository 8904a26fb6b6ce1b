package model

import "slices"

// UnitDef is the static description of a buildable unit type. BuildTime is
// in build-work units: a builder with BuildSpeed s finishes it in
// BuildTime/s seconds.
type UnitDef struct {
	Name         string   `yaml:"name" json:"name"`
	MetalCost    float64  `yaml:"metal_cost" json:"metalCost"`
	EnergyCost   float64  `yaml:"energy_cost" json:"energyCost"`
	BuildTime    float64  `yaml:"build_time" json:"buildTime"`
	BuildSpeed   float64  `yaml:"build_speed" json:"buildSpeed"`
	BuildOptions []string `yaml:"build_options" json:"buildOptions"`
	Requires     string   `yaml:"requires" json:"requires,omitempty"`
	MaxHealth    float64  `yaml:"max_health" json:"maxHealth"`

	MetalMake     float64 `yaml:"metal_make" json:"metalMake"`
	EnergyMake    float64 `yaml:"energy_make" json:"energyMake"`
	MetalUpkeep   float64 `yaml:"metal_upkeep" json:"metalUpkeep"`
	EnergyUpkeep  float64 `yaml:"energy_upkeep" json:"energyUpkeep"`
	ExtractsMetal float64 `yaml:"extracts_metal" json:"extractsMetal"`
	MetalStorage  float64 `yaml:"metal_storage" json:"metalStorage"`
	EnergyStorage float64 `yaml:"energy_storage" json:"energyStorage"`

	Water      bool `yaml:"water" json:"water"`
	Amphibious bool `yaml:"amphibious" json:"amphibious"`
	Mobile     bool `yaml:"mobile" json:"mobile"`

	OnOff     bool    `yaml:"on_off" json:"onOff"`
	CloakCost float64 `yaml:"cloak_cost" json:"cloakCost"`

	CanRepair    bool `yaml:"can_repair" json:"canRepair"`
	CanReclaim   bool `yaml:"can_reclaim" json:"canReclaim"`
	CanResurrect bool `yaml:"can_resurrect" json:"canResurrect"`
	CanCapture   bool `yaml:"can_capture" json:"canCapture"`
	CanAssist    bool `yaml:"can_assist" json:"canAssist"`

	Stockpile *StockpileWeapon `yaml:"stockpile" json:"stockpile,omitempty"`
}

// StockpileWeapon accumulates charges before firing. Time is seconds per
// charge.
type StockpileWeapon struct {
	MetalCost  float64 `yaml:"metal_cost" json:"metalCost"`
	EnergyCost float64 `yaml:"energy_cost" json:"energyCost"`
	Time       float64 `yaml:"time" json:"time"`
	Range      float64 `yaml:"range" json:"range"`
	ManualFire bool    `yaml:"manual_fire" json:"manualFire"`
}

func (d *UnitDef) IsBuilder() bool { return d.BuildSpeed > 0 && len(d.BuildOptions) > 0 }

func (d *UnitDef) CanBuild(name string) bool { return slices.Contains(d.BuildOptions, name) }

func (d *UnitDef) IsExtractor() bool { return d.ExtractsMetal > 0 }

func (d *UnitDef) LandCapable() bool  { return !d.Water || d.Amphibious }
func (d *UnitDef) WaterCapable() bool { return d.Water || d.Amphibious }

// WaterOnly reports types that can only be placed in water.
func (d *UnitDef) WaterOnly() bool { return d.Water && !d.Amphibious }

// Cost folds both currencies into metal-equivalent units.
func (d *UnitDef) Cost(energyPerMetal float64) float64 {
	if energyPerMetal <= 0 {
		return d.MetalCost + d.EnergyCost
	}
	return d.MetalCost + d.EnergyCost/energyPerMetal
}

// BuildSeconds is how long a builder of the given speed needs for d.
func (d *UnitDef) BuildSeconds(speed float64) float64 {
	if speed <= 0 {
		return d.BuildTime
	}
	return d.BuildTime / speed
}

// Rate returns the per-second production delta of one finished unit.
func (d *UnitDef) Rate(r Resource) float64 {
	if r == Energy {
		return d.EnergyMake - d.EnergyUpkeep
	}
	return d.MetalMake + d.ExtractsMetal - d.MetalUpkeep
}

func (d *UnitDef) StorageOf(r Resource) float64 {
	if r == Energy {
		return d.EnergyStorage
	}
	return d.MetalStorage
}

func (d *UnitDef) CostOf(r Resource) float64 {
	if r == Energy {
		return d.EnergyCost
	}
	return d.MetalCost
}

// PowerRole classifies units the power controller may toggle.
type PowerRole int

const (
	PowerNone PowerRole = iota
	PowerCloak
	PowerMetalMaker  // burns energy, makes metal
	PowerEnergyMaker // burns metal, makes energy
	PowerConsumer    // extractor or factory that needs energy to run
)

func (r PowerRole) String() string {
	switch r {
	case PowerCloak:
		return "cloak"
	case PowerMetalMaker:
		return "metal_maker"
	case PowerEnergyMaker:
		return "energy_maker"
	case PowerConsumer:
		return "consumer"
	}
	return "none"
}

// PowerRole derives the toggle role from the economy fields.
func (d *UnitDef) PowerRole() PowerRole {
	switch {
	case d.CloakCost > 0:
		return PowerCloak
	case !d.OnOff:
		return PowerNone
	case d.EnergyUpkeep > 0 && d.MetalMake > 0 && d.ExtractsMetal == 0:
		return PowerMetalMaker
	case d.MetalUpkeep > 0 && d.EnergyMake > 0:
		return PowerEnergyMaker
	case d.EnergyUpkeep > 0:
		return PowerConsumer
	}
	return PowerNone
}
