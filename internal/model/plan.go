package model

// Plan тариф сопровождения
type Plan string

const (
	PlanStandard  Plan = "Standard"
	PlanIntensive Plan = "Intensive"
	PlanPremium   Plan = "Premium"
)

// PlanTerms стоимость и число занятий тарифа за период
type PlanTerms struct {
	SessionsPerMonth int
	MonthlyAmount    int64 // в минимальных единицах валюты
}

var planTerms = map[Plan]PlanTerms{
	PlanStandard:  {SessionsPerMonth: 4, MonthlyAmount: 20000},
	PlanIntensive: {SessionsPerMonth: 8, MonthlyAmount: 35000},
	PlanPremium:   {SessionsPerMonth: 12, MonthlyAmount: 50000},
}

// Terms возвращает условия тарифа
func (p Plan) Terms() (PlanTerms, bool) {
	t, ok := planTerms[p]
	return t, ok
}

// Valid проверяет, что тариф существует
func (p Plan) Valid() bool {
	_, ok := planTerms[p]
	return ok
}
