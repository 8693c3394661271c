package config

// DefaultUserAgent mimics a desktop browser; the wiki rejects obvious bots.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// DefaultCategories returns the synchronized categories in reconciliation order.
func DefaultCategories() []CategorySource {
	return []CategorySource{
		{Name: "Prophecies", URL: "https://wiki.guildwars.com/wiki/List_of_Prophecies_quests"},
		{Name: "Factions", URL: "https://wiki.guildwars.com/wiki/List_of_Factions_quests"},
		{Name: "Nightfall", URL: "https://wiki.guildwars.com/wiki/List_of_Nightfall_quests"},
		{Name: "Eye of the North", URL: "https://wiki.guildwars.com/wiki/List_of_Eye_of_the_North_quests"},
	}
}

// DefaultBaseline returns the curated entries seeded on first run. Categories
// without a source page (Beyond, LDoA) exist only through their baseline.
func DefaultBaseline() []BaselineEntry {
	return []BaselineEntry{
		{Category: "Prophecies", Entries: []string{
			"--- PRIMARY MISSIONS ---",
			"Ascalon (Pre-Searing) Tutorials",
			"The Great Northern Wall",
		}},
		{Category: "Factions", Entries: []string{"--- PRIMARY MISSIONS ---", "Minister Cho's Estate"}},
		{Category: "Nightfall", Entries: []string{"--- PRIMARY MISSIONS ---", "Chahbek Village"}},
		{Category: "Eye of the North", Entries: []string{"--- PRIMARY MISSIONS ---", "Boreal Station"}},
		{Category: "Beyond", Entries: []string{"--- WAR IN KRYTA ---", "The War in Kryta"}},
		{Category: "LDoA", Entries: []string{
			"--- LEVELING MILESTONES ---",
			"Reach Level 10 (Charr at the Gate)",
			"Reach Level 13 (Farmer Hamnet Farm)",
			"Reach Level 16 (Vanguard Quest Scaling)",
			"Reach Level 20 (Legendary Defender)",
			"--- DAILY VANGUARD QUESTS ---",
			"Vanguard Rescue: Farmer Hamnet",
			"Vanguard Annihilation: Undead",
			"Vanguard Rescue: Footman Tate",
			"The Blazefiend",
			"Vanguard Annihilation: Charr",
		}},
	}
}

// DefaultIgnoreList holds header echoes and wiki chrome that show up as links
// inside list tables.
func DefaultIgnoreList() []string {
	return []string{
		"quest", "name", "location", "type", "given by", "level", "reward",
		"experience", "gold", "core", "logic", "mechanics", "user interface",
		"controls", "game mechanics", "terminology", "professions", "attributes",
		"skills", "builds", "edit", "logs", "logs:", "history", "recent changes",
		"random page", "help", "donate", "what links here", "related changes",
		"special pages", "printable version", "permanent link",
	}
}

// CategoryOrder lists every known category: synchronized sources first, then
// baseline-only categories in their configured order.
func (c Config) CategoryOrder() []string {
	seen := make(map[string]struct{})
	order := make([]string, 0, len(c.Catalog.Categories)+len(c.Catalog.Baseline))
	for _, src := range c.Catalog.Categories {
		if _, ok := seen[src.Name]; ok {
			continue
		}
		seen[src.Name] = struct{}{}
		order = append(order, src.Name)
	}
	for _, b := range c.Catalog.Baseline {
		if _, ok := seen[b.Category]; ok {
			continue
		}
		seen[b.Category] = struct{}{}
		order = append(order, b.Category)
	}
	return order
}
