package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/annel0/spawnsvc/internal/auth"
	"github.com/annel0/spawnsvc/internal/logging"
	"github.com/annel0/spawnsvc/internal/physics"
	"github.com/annel0/spawnsvc/internal/scene"
	"github.com/annel0/spawnsvc/internal/service"
	"github.com/annel0/spawnsvc/internal/spawn"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: spawn-cli <command> [flags]

Commands:
  select    выбрать точку появления в YAML сцене
  generate  сгенерировать сцену по перлин-шуму в YAML
  hash      bcrypt хеш пароля администратора
  secret    случайный JWT секрет (base64)
`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "select":
		err = runSelect(os.Args[2:])
	case "generate":
		err = runGenerate(os.Args[2:])
	case "hash":
		err = runHash(os.Args[2:])
	case "secret":
		fmt.Println(auth.GenerateSecureSecret())
	case "-h", "--help", "help":
		usage()
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
}

func runSelect(args []string) error {
	fs := flag.NewFlagSet("select", flag.ExitOnError)
	var (
		scenePath = fs.String("scene", "", "YAML файл сцены")
		tag       = fs.String("tag", "", "Предпочтительный тег точки")
		footprint = fs.String("footprint", "", "Размеры актора: ширина,глубина,высота")
		seed      = fs.Int64("seed", 0, "Сид генератора (0 - от времени)")
		runs      = fs.Int("n", 1, "Число выборов; при n > 1 печатается распределение")
		radius    = fs.Float64("teleport-radius", physics.DefaultTeleportRadius, "Радиус поиска свободного места")
		verbose   = fs.Bool("v", false, "Печатать пропуски занятых точек")
	)
	fs.Parse(args)

	if *scenePath == "" {
		return fmt.Errorf("select: -scene is required")
	}
	if !*verbose {
		logging.GetSpawnLogger().SetLevels(logging.WARN, logging.WARN)
	}

	sc, err := scene.LoadFile(*scenePath)
	if err != nil {
		return err
	}
	fp, err := parseFootprint(*footprint)
	if err != nil {
		return err
	}

	geometry := sc.Geometry(physics.WithTeleportSearch(*radius, physics.DefaultTeleportStep))
	selector := spawn.NewSelector(sc.Provider(), geometry, spawn.NewRand(*seed))
	req := spawn.Request{Tag: *tag, Footprint: fp}

	if *runs <= 1 {
		return printJSON(selector.Select(req))
	}

	counts := make(map[string]int)
	for i := 0; i < *runs; i++ {
		res := selector.Select(req)
		key := res.Outcome.String()
		if res.Point != nil {
			key = res.Point.ID + " (" + key + ")"
		}
		counts[key]++
	}

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%-40s %6d  %5.1f%%\n", k, counts[k], 100*float64(counts[k])/float64(*runs))
	}
	return nil
}

func runGenerate(args []string) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	var (
		id      = fs.String("id", "generated", "ID сцены")
		seed    = fs.Int64("seed", 1, "Сид шума")
		width   = fs.Int("width", 0, "Ширина в ячейках")
		depth   = fs.Int("depth", 0, "Глубина в ячейках")
		points  = fs.Int("points", 0, "Число точек появления")
		tags    = fs.String("tags", "", "Теги точек через запятую")
		preview = fs.Bool("preview", false, "Пометить последнюю точку как preview")
		out     = fs.String("out", "", "Файл для записи (по умолчанию stdout)")
	)
	fs.Parse(args)

	params := service.GenerateParams{
		Seed:        *seed,
		Width:       *width,
		Depth:       *depth,
		Points:      *points,
		Tags:        parseStringList(*tags),
		WithPreview: *preview,
	}
	sc, err := params.Generator().Generate(*id)
	if err != nil {
		return err
	}

	if *out != "" {
		if err := scene.SaveFile(*out, sc); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "✅ Сцена %s: %d точек, %d препятствий → %s\n", sc.ID, len(sc.SpawnPoints), len(sc.Blockers), *out)
		return nil
	}
	data, err := scene.Marshal(sc)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func runHash(args []string) error {
	fs := flag.NewFlagSet("hash", flag.ExitOnError)
	password := fs.String("password", "", "Пароль администратора")
	fs.Parse(args)

	if *password == "" {
		return fmt.Errorf("hash: -password is required")
	}
	hash, err := auth.HashPassword(*password)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

// parseFootprint разбирает "w,d,h"; пустая строка - footprint по умолчанию
func parseFootprint(s string) (*physics.Footprint, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return nil, fmt.Errorf("footprint %q: expected width,depth,height", s)
	}
	var dims [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("footprint %q: bad value %q", s, p)
		}
		dims[i] = v
	}
	fp := physics.NewBoxFootprint(dims[0], dims[1], dims[2])
	return &fp, nil
}

func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
