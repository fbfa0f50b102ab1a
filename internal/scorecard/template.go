package scorecard

import (
	"strings"

	"github.com/dss-dashboard/backend/internal/kpi"
	"github.com/dss-dashboard/backend/internal/olap"
	"github.com/dss-dashboard/backend/internal/storage/models"
)

type Source string

const (
	SourceKPI       Source = "kpi"
	SourceAggregate Source = "aggregate"
	SourceManual    Source = "manual"
)

// DefaultManualInputs are the survey-fed values used until real figures are supplied.
var DefaultManualInputs = map[string]float64{
	"new_markets":           1,
	"nps":                   68,
	"test_coverage":         78,
	"cloud_certified":       45,
	"ai_projects":           2,
	"employee_satisfaction": 72,
	"improvement_proposals": 12,
}

type accessor func(in *Input) (float64, bool)

type keyResultTemplate struct {
	id          string
	description string
	target      float64
	unit        string
	direction   Direction
	upperBound  float64
	source      Source
	current     accessor
}

type objectiveTemplate struct {
	id          string
	name        string
	owner       string
	perspective Perspective
	keyResults  []keyResultTemplate
}

func higher(id, desc string, target float64, unit string, src Source, fn accessor) keyResultTemplate {
	return keyResultTemplate{id: id, description: desc, target: target, unit: unit, direction: HigherIsBetter, source: src, current: fn}
}

func lower(id, desc string, target float64, unit string, src Source, fn accessor) keyResultTemplate {
	return keyResultTemplate{id: id, description: desc, target: target, unit: unit, direction: LowerIsBetter, source: src, current: fn}
}

func lowerBounded(id, desc string, target, upper float64, unit string, src Source, fn accessor) keyResultTemplate {
	kr := lower(id, desc, target, unit, src, fn)
	kr.upperBound = upper
	return kr
}

var objectives = []objectiveTemplate{
	{
		id: "fin-revenue", name: "Grow software project revenue", owner: "CFO", perspective: Financial,
		keyResults: []keyResultTemplate{
			higher("total_net_gain", "Generate $50M in net gain", 50_000_000, "$", SourceAggregate, totalNetGain),
			higher("high_value_projects", "Close 10 high-value projects (>$500K gain)", 10, "projects", SourceAggregate, highValueProjects),
			higher("profit_margin", "Keep profit margin above 35%", 35, "%", SourceAggregate, profitMargin),
			higher("budget_efficiency", "Average ROI of at least 30%", 30, "%", SourceKPI, fromKPI(kpi.BudgetEfficiency)),
		},
	},
	{
		id: "fin-costs", name: "Optimize operating costs", owner: "CFO", perspective: Financial,
		keyResults: []keyResultTemplate{
			lower("avg_project_cost", "Bring average project cost down to $400K", 400_000, "$", SourceAggregate, avgActualCost),
			higher("on_budget_share", "Deliver 90% of projects within estimate", 90, "%", SourceAggregate, onBudgetShare),
			lowerBounded("cost_overrun", "Keep mean cost overrun at 0% (20% ceiling)", 0, 20, "%", SourceAggregate, costOverrun),
		},
	},
	{
		id: "cust-base", name: "Expand and retain the client base", owner: "CCO", perspective: Customer,
		keyResults: []keyResultTemplate{
			higher("active_clients", "Reach 50 active clients", 50, "clients", SourceAggregate, activeClients),
			higher("repeat_client_rate", "Reach a 70% repeat-client rate", 70, "%", SourceAggregate, repeatClientRate),
			higher("new_clients", "Win 10 new clients in the latest year", 10, "clients", SourceAggregate, newClients),
			higher("new_markets", "Enter 3 new markets", 3, "markets", SourceManual, manual("new_markets")),
		},
	},
	{
		id: "cust-value", name: "Improve client satisfaction and value", owner: "CCO", perspective: Customer,
		keyResults: []keyResultTemplate{
			higher("satisfaction_index", "Satisfaction index of 75", 75, "index", SourceKPI, fromKPI(kpi.Satisfaction)),
			higher("nps", "Reach an NPS of 75+", 75, "points", SourceManual, manual("nps")),
			higher("avg_project_value", "Raise average project value to $250K", 250_000, "$", SourceAggregate, avgProjectValue),
		},
	},
	{
		id: "int-quality", name: "Reach software quality excellence", owner: "CTO", perspective: InternalProcess,
		keyResults: []keyResultTemplate{
			lower("defect_density", "Reduce defect density below 8 per project", 8, "defects/project", SourceKPI, fromKPI(kpi.DefectDensity)),
			lower("critical_defect_share", "Keep critical defects under 5% of total", 5, "%", SourceAggregate, criticalShare),
			lower("resolution_time", "Resolve defects within 2 days on average", 2, "days", SourceKPI, fromKPI(kpi.ResolutionTime)),
			higher("test_coverage", "Reach 95% automated test coverage", 95, "%", SourceManual, manual("test_coverage")),
		},
	},
	{
		id: "int-delivery", name: "Optimize delivery efficiency", owner: "CTO", perspective: InternalProcess,
		keyResults: []keyResultTemplate{
			higher("completion_rate", "Complete 90% of projects successfully", 90, "%", SourceKPI, fromKPI(kpi.CompletionRate)),
			lower("avg_delivery_months", "Cut average delivery time to 4 months", 4, "months", SourceAggregate, avgDeliveryMonths),
			lowerBounded("cancellation_rate", "Keep cancellations near 0% (20% ceiling)", 0, 20, "%", SourceAggregate, cancellationRate),
		},
	},
	{
		id: "learn-skills", name: "Build advanced technical capabilities", owner: "CTO", perspective: LearningGrowth,
		keyResults: []keyResultTemplate{
			higher("cloud_certified", "Certify 80% of the team on cloud", 80, "%", SourceManual, manual("cloud_certified")),
			higher("tech_stacks", "Master 10 technology stacks", 10, "stacks", SourceAggregate, techStacks),
			higher("ai_projects", "Ship AI/ML in 5 projects", 5, "projects", SourceManual, manual("ai_projects")),
		},
	},
	{
		id: "learn-culture", name: "Strengthen the innovation culture", owner: "CHRO", perspective: LearningGrowth,
		keyResults: []keyResultTemplate{
			higher("employee_satisfaction", "Reach 85% employee satisfaction", 85, "%", SourceManual, manual("employee_satisfaction")),
			higher("improvement_proposals", "Collect 20 internal improvement proposals", 20, "proposals", SourceManual, manual("improvement_proposals")),
			higher("team_utilization", "Keep team utilization at 70%", 70, "%", SourceKPI, fromKPI(kpi.TeamUtilization)),
		},
	},
}

func fromKPI(n kpi.Name) accessor {
	return func(in *Input) (float64, bool) {
		return in.KPIs.Value(n)
	}
}

func manual(key string) accessor {
	return func(in *Input) (float64, bool) {
		if v, ok := in.Manual[key]; ok {
			return v, true
		}
		v, ok := DefaultManualInputs[key]
		return v, ok
	}
}

func totalNetGain(in *Input) (float64, bool) {
	if in.projectCube.Len() == 0 {
		return 0, false
	}
	sum, err := in.projectCube.Sum("net_gain")
	return sum, err == nil
}

func highValueProjects(in *Input) (float64, bool) {
	n := 0
	for _, p := range in.Projects {
		if p.NetGain > 500_000 {
			n++
		}
	}
	return float64(n), len(in.Projects) > 0
}

func profitMargin(in *Input) (float64, bool) {
	var gain, cost float64
	for _, p := range in.Projects {
		gain += p.NetGain
		cost += p.ActualCost
	}
	if cost <= 0 {
		return 0, false
	}
	return gain / cost * 100, true
}

func avgActualCost(in *Input) (float64, bool) {
	var sum float64
	n := 0
	for _, p := range in.Projects {
		if p.ActualCost > 0 {
			sum += p.ActualCost
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func onBudgetShare(in *Input) (float64, bool) {
	within, n := 0, 0
	for _, p := range in.Projects {
		if p.EstimatedCost <= 0 {
			continue
		}
		n++
		if p.ActualCost <= p.EstimatedCost {
			within++
		}
	}
	if n == 0 {
		return 0, false
	}
	return float64(within) / float64(n) * 100, true
}

func costOverrun(in *Input) (float64, bool) {
	var sum float64
	n := 0
	for _, p := range in.Projects {
		if p.EstimatedCost <= 0 {
			continue
		}
		sum += (p.ActualCost - p.EstimatedCost) / p.EstimatedCost * 100
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func activeClients(in *Input) (float64, bool) {
	clients, err := olap.DropNull(in.projectCube, "client_name")
	if err != nil {
		return 0, false
	}
	distinct, err := clients.Distinct("client_name")
	if err != nil {
		return 0, false
	}
	n := 0
	for _, c := range distinct {
		if c.String() != "" {
			n++
		}
	}
	return float64(n), len(in.Projects) > 0
}

func repeatClientRate(in *Input) (float64, bool) {
	perClient, err := olap.RollUp(in.projectCube, "client_name", "", olap.AggCount)
	if err != nil || perClient.Len() == 0 {
		return 0, false
	}
	counts, err := perClient.Floats("count")
	if err != nil {
		return 0, false
	}
	repeat := 0
	for _, c := range counts {
		if c > 1 {
			repeat++
		}
	}
	return float64(repeat) / float64(len(counts)) * 100, true
}

// newClients counts clients whose first project started in the latest start year on record.
func newClients(in *Input) (float64, bool) {
	first := make(map[string]int)
	latest := 0
	for _, p := range in.Projects {
		if p.StartDate.IsZero() || p.ClientName == "" {
			continue
		}
		y := p.StartDate.Year()
		if y > latest {
			latest = y
		}
		if cur, ok := first[p.ClientName]; !ok || y < cur {
			first[p.ClientName] = y
		}
	}
	if latest == 0 {
		return 0, false
	}
	n := 0
	for _, y := range first {
		if y == latest {
			n++
		}
	}
	return float64(n), true
}

func avgProjectValue(in *Input) (float64, bool) {
	var sum float64
	n := 0
	for _, p := range in.Projects {
		if p.NetGain > 0 {
			sum += p.NetGain
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func criticalShare(in *Input) (float64, bool) {
	total, err := in.qualityCube.Sum("defect_count")
	if err != nil || total <= 0 {
		return 0, false
	}
	critical, err := olap.Slice(in.qualityCube, "severity", olap.Category(string(models.SeverityCritical)))
	if err != nil {
		return 0, false
	}
	c, err := critical.Sum("defect_count")
	if err != nil {
		return 0, false
	}
	return c / total * 100, true
}

func avgDeliveryMonths(in *Input) (float64, bool) {
	var sum float64
	n := 0
	for _, p := range in.Projects {
		if p.Status == models.StatusCompleted && p.DurationDays > 0 {
			sum += p.DurationMonths()
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func cancellationRate(in *Input) (float64, bool) {
	if len(in.Projects) == 0 {
		return 0, false
	}
	n := 0
	for _, p := range in.Projects {
		if p.Status == models.StatusCancelled {
			n++
		}
	}
	return float64(n) / float64(len(in.Projects)) * 100, true
}

// techStacks counts distinct stack tokens, taken from the second dash-separated
// part of project names such as "erp-java-core".
func techStacks(in *Input) (float64, bool) {
	stacks := make(map[string]struct{})
	for _, p := range in.Projects {
		parts := strings.Split(p.Name, "-")
		if len(parts) > 1 && parts[1] != "" {
			stacks[strings.ToLower(parts[1])] = struct{}{}
		}
	}
	return float64(len(stacks)), len(in.Projects) > 0
}
