// main package for the story-cli
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/book-expert/logger"
	"github.com/book-expert/story-service/internal/app"
	"github.com/book-expert/story-service/internal/config"
	"github.com/book-expert/story-service/internal/core"
	"github.com/book-expert/story-service/internal/story"
)

// Flag names and descriptions.
const (
	flagTopic      = "topic"
	flagLength     = "length"
	flagConfig     = "config"
	flagTopicDesc  = "Story topic (asked interactively when omitted)"
	flagLengthDesc = "Story length: Short, Medium or Long (asked interactively when omitted)"
	flagConfigDesc = "Path to project.toml (defaults to the configurator search)"
)

// Prompts and messages.
const (
	banner            = "Story Audio Generator with Background Music"
	promptTopic       = "Enter a story topic: "
	promptLengthTitle = "Select story length:"
	promptLengthFmt   = "  %s. %s (%s)\n"
	promptChoice      = "Enter your choice (1/2/3): "
	msgSelectedLength = "Selected length: %s\n"
	msgStageStarted   = "-> %s...\n"
	msgStageDone      = "   %s done\n"
	storyPreviewRunes = 200
	logFileName       = "story-cli.log"
	bootstrapLogFile  = "story-cli-bootstrap.log"
)

// ErrTopicEmpty indicates that no topic was given.
var ErrTopicEmpty = errors.New("topic cannot be empty")

var lengthChoices = []struct {
	key    string
	length core.Length
}{
	{"1", core.LengthShort},
	{"2", core.LengthMedium},
	{"3", core.LengthLong},
}

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	topic  string
	length string
	config string
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application entry point, returning an error on failure.
func run() error {
	flags, err := parseFlags(os.Args[1:])
	if err != nil {
		return err
	}

	fmt.Println(banner)

	topic, length, err := resolveInput(flags, os.Stdin, os.Stdout)
	if err != nil {
		return err
	}

	cfg, log, err := setup(flags.config)
	if err != nil {
		return err
	}

	defer func() {
		_ = log.Close()
	}()

	app.WarnMissing(cfg, log)

	components, err := app.Build(cfg, log, nil)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checkErr := components.CheckProviders(ctx)
	if checkErr != nil {
		log.Warn("%v", checkErr)
		fmt.Fprintf(os.Stderr, "Warning: %v\n", checkErr)
	}

	result, err := components.Pipeline.Run(ctx, story.Request{
		Topic:   topic,
		Length:  length,
		OnStage: progressPrinter(os.Stdout),
	})
	if err != nil {
		return err
	}

	printResult(os.Stdout, result)

	return nil
}

// parseFlags parses args into appFlags.
func parseFlags(args []string) (appFlags, error) {
	var flags appFlags

	flagSet := flag.NewFlagSet("story-cli", flag.ContinueOnError)
	flagSet.StringVar(&flags.topic, flagTopic, "", flagTopicDesc)
	flagSet.StringVar(&flags.length, flagLength, "", flagLengthDesc)
	flagSet.StringVar(&flags.config, flagConfig, "", flagConfigDesc)

	err := flagSet.Parse(args)
	if err != nil {
		return appFlags{}, fmt.Errorf("failed to parse flags: %w", err)
	}

	return flags, nil
}

// resolveInput takes topic and length from flags and asks for whatever is missing.
func resolveInput(flags appFlags, in io.Reader, out io.Writer) (string, core.Length, error) {
	reader := bufio.NewReader(in)

	topic := strings.TrimSpace(flags.topic)
	if topic == "" {
		fmt.Fprint(out, promptTopic)
		topic = readLine(reader)
	}

	if topic == "" {
		return "", "", ErrTopicEmpty
	}

	if flags.length != "" {
		length, err := core.ParseLength(flags.length)

		return topic, length, err
	}

	fmt.Fprintln(out, promptLengthTitle)

	for _, choice := range lengthChoices {
		fmt.Fprintf(out, promptLengthFmt, choice.key, choice.length, story.Guideline(choice.length))
	}

	fmt.Fprint(out, promptChoice)

	length := chooseLength(readLine(reader))
	fmt.Fprintf(out, msgSelectedLength, length)

	return topic, length, nil
}

// chooseLength maps a menu answer to a length. Anything unrecognized selects the default.
func chooseLength(answer string) core.Length {
	for _, choice := range lengthChoices {
		if answer == choice.key {
			return choice.length
		}
	}

	return core.DefaultLength
}

func readLine(reader *bufio.Reader) string {
	line, _ := reader.ReadString('\n')

	return strings.TrimSpace(line)
}

// setup loads configuration and opens the log file.
func setup(configPath string) (*config.Config, *logger.Logger, error) {
	var (
		cfg *config.Config
		err error
	)

	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = loadWithBootstrapLogger()
	}

	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.New(cfg.Paths.BaseLogsDir, logFileName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, log, nil
}

func loadWithBootstrapLogger() (*config.Config, error) {
	bootstrapLog, err := logger.New(os.TempDir(), bootstrapLogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create bootstrap logger: %w", err)
	}

	defer func() {
		_ = bootstrapLog.Close()
	}()

	return config.Load(bootstrapLog)
}

func progressPrinter(out io.Writer) func(story.Stage, story.StageStatus) {
	return func(stage story.Stage, status story.StageStatus) {
		if status == story.StageStarted {
			fmt.Fprintf(out, msgStageStarted, stage)

			return
		}

		fmt.Fprintf(out, msgStageDone, stage)
	}
}

func printResult(out io.Writer, result story.Result) {
	storyText := result.Story
	if runes := []rune(storyText); len(runes) > storyPreviewRunes {
		storyText = string(runes[:storyPreviewRunes]) + "..."
	}

	fmt.Fprintf(out, "\nStory: %s\n", storyText)
	fmt.Fprintf(out, "\nMusic Description: %s\n", result.MusicDescription)
	fmt.Fprintf(out, "\nDuration: %.2f seconds\n", result.SpeechDurationSeconds)
	fmt.Fprintf(out, "\nFinal audio file: %s\n", result.OutputPath)
}
