package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Consumable: товар из кассы, который берут командой (!мате 2).
type Consumable struct {
	Names  []string // команды; первая: основное имя
	Price  int64    // центы за штуку
	Symbol string
}

// Name: основное имя товара.
func (c Consumable) Name() string {
	return c.Names[0]
}

// Consumables разбирается из CONSUMABLES:
//
//	мате|mate:150:🧉,вода|water:50:💧
type Consumables []Consumable

// Decode реализует envconfig.Decoder.
func (cs *Consumables) Decode(value string) error {
	var out Consumables
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.Split(item, ":")
		if len(parts) != 3 {
			return fmt.Errorf("товар %q: ожидается имена:цена:символ", item)
		}

		var names []string
		for _, n := range strings.Split(parts[0], "|") {
			if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
				names = append(names, n)
			}
		}
		if len(names) == 0 {
			return fmt.Errorf("товар %q: нет имени", item)
		}

		price, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
		if err != nil || price <= 0 {
			return fmt.Errorf("товар %q: цена должна быть целым числом центов > 0", item)
		}

		out = append(out, Consumable{Names: names, Price: price, Symbol: strings.TrimSpace(parts[2])})
	}
	*cs = out
	return nil
}

// Consumable ищет товар по имени команды.
func (c *Config) Consumable(cmd string) (Consumable, bool) {
	cmd = strings.ToLower(cmd)
	for _, item := range c.Consumables {
		for _, n := range item.Names {
			if n == cmd {
				return item, true
			}
		}
	}
	return Consumable{}, false
}
