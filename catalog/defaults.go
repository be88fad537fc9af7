package catalog

import (
	"time"

	"geotrigger/core"
	"geotrigger/passport"
	"geotrigger/rewards"
)

func defaultTiers() []core.TierConfig {
	return []core.TierConfig{
		{
			Level: core.TierBronze, Name: "Bronce",
			MinPoints: 0, MaxPoints: 999, Multiplier: 1.0,
			Benefits: []core.TierBenefit{
				{Type: "discount", Value: 5, Description: "5% de descuento en bebidas seleccionadas"},
				{Type: "cashback", Value: 2, Description: "2% de cashback en compras"},
			},
		},
		{
			Level: core.TierSilver, Name: "Plata",
			MinPoints: 1000, MaxPoints: 4999, Multiplier: 1.2,
			Benefits: []core.TierBenefit{
				{Type: "discount", Value: 10, Description: "10% de descuento en bebidas seleccionadas"},
				{Type: "cashback", Value: 3, Description: "3% de cashback en compras"},
				{Type: "priority_access", Value: 1, Description: "Acceso prioritario en eventos especiales"},
			},
		},
		{
			Level: core.TierGold, Name: "Oro",
			MinPoints: 5000, MaxPoints: 19999, Multiplier: 1.5,
			Benefits: []core.TierBenefit{
				{Type: "discount", Value: 15, Description: "15% de descuento en bebidas seleccionadas"},
				{Type: "cashback", Value: 5, Description: "5% de cashback en compras"},
				{Type: "priority_access", Value: 1, Description: "Acceso prioritario y reservas VIP"},
				{Type: "free_items", Value: 1, Description: "Copa de bienvenida gratuita"},
			},
		},
		{
			Level: core.TierBlack, Name: "Black",
			MinPoints: 20000, MaxPoints: -1, Multiplier: 2.0,
			Benefits: []core.TierBenefit{
				{Type: "discount", Value: 20, Description: "20% de descuento en toda la barra"},
				{Type: "cashback", Value: 8, Description: "8% de cashback en compras"},
				{Type: "priority_access", Value: 1, Description: "Acceso VIP completo y mesas reservadas"},
				{Type: "free_items", Value: 2, Description: "Copa de bienvenida y botana gratuita"},
				{Type: "exclusive_events", Value: 1, Description: "Invitaciones exclusivas a eventos privados"},
			},
		},
	}
}

func defaultPointsRules() []core.PointsRule {
	return []core.PointsRule{
		{ActionType: core.ActionVenueVisit, BasePoints: 10, TierMultiplier: true},
		{ActionType: core.ActionFirstVisit, BasePoints: 50, TierMultiplier: true, FirstTimeBonus: 100},
		{ActionType: core.ActionPayment, BasePoints: 1, TierMultiplier: true},
		{ActionType: core.ActionExtendedVisit, BasePoints: 25, TierMultiplier: true, VolumeBonuses: []core.VolumeBonus{
			{Threshold: time.Hour, Bonus: 15},
			{Threshold: 2 * time.Hour, Bonus: 30},
		}},
		{ActionType: core.ActionMultipleVenues, BasePoints: 75, TierMultiplier: true},
		{ActionType: core.ActionFriendReferral, BasePoints: 200},
		{ActionType: core.ActionBirthdayBonus, BasePoints: 500},
		{ActionType: core.ActionSpecialEvent, BasePoints: 100, TierMultiplier: true},
	}
}

func defaultTemplates() []passport.Template {
	return []passport.Template{
		{
			ID: "daily_explorer", Type: passport.TypeDaily,
			Name: "Explorador del Día", Description: "Visita 2 venues en un día",
			RequiredStamps: 2, Validity: 24 * time.Hour, Active: true,
			Rules: []passport.Rule{
				{Type: passport.RuleSameDayVisits, Description: "Las visitas deben ser el mismo día"},
				{Type: passport.RuleMinimumVisitDuration, Value: 30, Description: "Visita mínima de 30 minutos"},
			},
			Rewards: []passport.Reward{
				{Type: "points", Value: 100, Description: "Bono Explorador del Día"},
			},
		},
		{
			ID: "venue_chain_master", Type: passport.TypeVenueChain,
			Name: "Maestro de la Cadena", Description: "Completa la ruta de venues Mandala",
			RequiredStamps: 4, Validity: 30 * 24 * time.Hour, Active: true,
			Rules: []passport.Rule{
				{Type: passport.RuleMinimumVisitDuration, Value: 45, Description: "Visita mínima de 45 minutos"},
			},
			Rewards: []passport.Reward{
				{Type: "points", Value: 500, Description: "Bono Maestro de la Cadena"},
				{Type: "free_item", Value: 1, Description: "Botella de cortesía"},
			},
		},
		{
			ID: "weekend_warrior", Type: passport.TypeWeekly,
			Name: "Guerrero del Fin de Semana", Description: "3 visitas de viernes a domingo",
			RequiredStamps: 3, Validity: 7 * 24 * time.Hour, Active: true,
			Rules: []passport.Rule{
				{Type: passport.RuleSpecificTimeRange, TimeRange: "friday-sunday", Description: "Solo viernes a domingo"},
			},
			Rewards: []passport.Reward{
				{Type: "points", Value: 300, Description: "Bono Guerrero del Fin de Semana"},
			},
		},
		{
			ID: "special_event_collector", Type: passport.TypeSpecialEvent,
			Name: "Coleccionista de Eventos", Description: "Consumo mínimo en eventos especiales",
			RequiredStamps: 3, Validity: 30 * 24 * time.Hour, Active: true,
			Rules: []passport.Rule{
				{Type: passport.RuleMinimumSpend, Value: 500, Description: "Consumo mínimo de $500 MXN"},
			},
			Rewards: []passport.Reward{
				{Type: "points", Value: 400, Description: "Bono Coleccionista"},
				{Type: "vip_access", Value: 1, Description: "Acceso VIP al siguiente evento"},
			},
		},
	}
}

func defaultAchievements() []passport.Achievement {
	return []passport.Achievement{
		{ID: "first_stamp", Name: "Primer Sello", Description: "Tu primer sello de pasaporte",
			Requirement: passport.ReqStampsCollected, Threshold: 1,
			Rewards: []passport.Reward{{Type: "points", Value: 50, Description: "Bono primer sello"}}},
		{ID: "collector", Name: "Coleccionista", Description: "Reúne 10 sellos",
			Requirement: passport.ReqStampsCollected, Threshold: 10,
			Rewards: []passport.Reward{{Type: "points", Value: 200, Description: "Bono coleccionista"}}},
		{ID: "passport_master", Name: "Maestro de Pasaportes", Description: "Completa 5 pasaportes",
			Requirement: passport.ReqPassportsCompleted, Threshold: 5,
			Rewards: []passport.Reward{{Type: "points", Value: 500, Description: "Bono maestro"}}},
		{ID: "streak_week", Name: "Racha Semanal", Description: "Sellos 7 días seguidos",
			Requirement: passport.ReqStreakDays, Threshold: 7,
			Rewards: []passport.Reward{{Type: "points", Value: 300, Description: "Bono racha"}}},
		{ID: "venue_explorer", Name: "Explorador de Venues", Description: "Visita 5 venues distintos",
			Requirement: passport.ReqVenuesVisited, Threshold: 5,
			Rewards: []passport.Reward{{Type: "points", Value: 250, Description: "Bono explorador"}}},
	}
}

func defaultPromotions() []rewards.Promotion {
	return []rewards.Promotion{
		{
			ID: "welcome_first_timer", Name: "Bienvenida Primera Vez",
			Description: "Descuento especial para tu primera visita",
			Active:      true, Priority: 10, Urgency: rewards.UrgencyHigh,
			Audience: rewards.Audience{VisitHistory: rewards.HistoryFirstTime},
			Conditions: []rewards.Condition{
				{Type: rewards.CondFirstVisit, Weight: 1.0},
			},
			Rewards: []rewards.Definition{
				{ID: "first_visit_discount", Name: "Descuento de Bienvenida",
					Description: "25% de descuento en tu primera cuenta",
					Kind:        rewards.KindInstantDiscount, Value: 25},
			},
			DisplayRules: rewards.DisplayRules{MaxDisplaysPerUser: 1, Cooldown: 24 * time.Hour},
		},
		{
			ID: "extended_visit_bonus", Name: "Bono por Visita Extendida",
			Description: "Premio por quedarte más de una hora",
			Active:      true, Priority: 8, Urgency: rewards.UrgencyMedium,
			Conditions: []rewards.Condition{
				{Type: rewards.CondExtendedVisit, Params: rewards.ConditionParams{MinDuration: time.Hour}, Weight: 1.0},
			},
			Rewards: []rewards.Definition{
				{ID: "extended_visit_free_drink", Name: "Copa Gratis",
					Description: "Una copa de la casa por tu visita extendida",
					Kind:        rewards.KindFreeItem, Value: 150},
			},
			DisplayRules: rewards.DisplayRules{MaxDisplaysPerUser: 5, Cooldown: 24 * time.Hour},
		},
		{
			ID: "tier_exclusive_vip", Name: "Acceso VIP Exclusivo",
			Description: "Beneficios exclusivos para niveles altos",
			Active:      true, Priority: 15, Urgency: rewards.UrgencyHigh,
			Audience: rewards.Audience{
				TierLevels:   []core.TierLevel{core.TierGold, core.TierBlack},
				VisitHistory: rewards.HistoryVIP,
			},
			Conditions: []rewards.Condition{
				{Type: rewards.CondLocationEntry, Params: rewards.ConditionParams{MinTier: core.TierGold}, Weight: 1.0},
			},
			Rewards: []rewards.Definition{
				{ID: "vip_access_upgrade", Name: "Upgrade VIP",
					Description: "Mesa VIP sin costo esta noche",
					Kind:        rewards.KindVIPAccess, Value: 1},
			},
			DisplayRules: rewards.DisplayRules{MaxDisplaysPerUser: 3, Cooldown: 7 * 24 * time.Hour},
		},
		{
			ID: "multi_venue_explorer", Name: "Explorador Multi-Venue",
			Description: "Cashback por recorrer más de un venue en el día",
			Active:      true, Priority: 12, Urgency: rewards.UrgencyMedium,
			Audience: rewards.Audience{VisitHistory: rewards.HistoryReturning},
			Conditions: []rewards.Condition{
				{Type: rewards.CondMultipleVenues, Params: rewards.ConditionParams{VisitCount: 2}, Weight: 1.0},
			},
			Rewards: []rewards.Definition{
				{ID: "multi_venue_cashback", Name: "Cashback Explorador",
					Description: "10% de cashback en tu siguiente cuenta",
					Kind:        rewards.KindCashback, Value: 10},
			},
			DisplayRules: rewards.DisplayRules{MaxDisplaysPerUser: 4, Cooldown: 7 * 24 * time.Hour},
		},
	}
}

func defaultHappyHours() []rewards.HappyHourOverlay {
	return []rewards.HappyHourOverlay{
		{
			ID: "happy_hour_mandala", Name: "Happy Hour Mandala", Active: true,
			Slots: []rewards.TimeWindow{
				{Start: "18:00", End: "20:00", Days: []string{"monday", "tuesday", "wednesday", "thursday", "friday"}},
			},
			Rewards: []rewards.Definition{
				{ID: "happy_hour_discount", Name: "Descuento Happy Hour",
					Description: "2x1 en bebidas seleccionadas",
					Kind:        rewards.KindHappyHour, Value: 50},
			},
		},
	}
}

func defaultWeather() []rewards.WeatherOverlay {
	return []rewards.WeatherOverlay{
		{
			ID: "rainy_day_comfort", Name: "Refugio de Lluvia", Condition: "rain", Active: true,
			Rewards: []rewards.Definition{
				{ID: "rain_discount", Name: "Descuento Día Lluvioso",
					Description: "Bebida caliente de cortesía",
					Kind:        rewards.KindFreeItem, Value: 80},
			},
		},
	}
}
