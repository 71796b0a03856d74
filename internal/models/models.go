package models

// All lists every persisted model, in migration order.
func All() []interface{} {
	return []interface{}{
		&Store{},
		&ProductRecord{},
		&ConfigurableLink{},
		&DisplayRecord{},
		&DisplayTranslation{},
		&CategoryNode{},
		&PromotionRecord{},
		&PromotionLabel{},
		&ProductPromotion{},
		&StockCacheEntry{},
		&QueueItem{},
		&QueueGeneration{},
		&Issue{},
	}
}
