package testcases

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino-ext/components/model/openai"

	"github.com/tbxark/remi/llm"
	"github.com/tbxark/remi/types"
)

type Config struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
}

type configFile struct {
	LLM Config `json:"llm"`
}

func loadConfig(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var conf configFile
	if err := sonic.Unmarshal(file, &conf); err != nil {
		return nil, err
	}
	if key := os.Getenv("REMI_LLM_API_KEY"); key != "" {
		conf.LLM.APIKey = key
	}
	return &conf.LLM, nil
}

func InitChatModel(t *testing.T) *openai.ChatModel {
	if os.Getenv("REMI_RUN_LIVE_TESTS") != "1" {
		t.Skip("set REMI_RUN_LIVE_TESTS=1 to run live LLM tests")
		return nil
	}

	ctx := context.Background()
	conf, err := loadConfig("../config.json")
	if err != nil {
		t.Skipf("failed to load config: %v", err)
		return nil
	}
	if conf.APIKey == "" {
		t.Skip("config.json llm.api_key is empty")
		return nil
	}
	timeout := 60 * time.Second
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  conf.APIKey,
		Model:   conf.Model,
		BaseURL: conf.BaseURL,
		Timeout: timeout,
	})
	if err != nil {
		t.Fatalf("failed to init chat model: %v", err)
		return nil
	}
	return chatModel
}

func NewToolCollaborator(t *testing.T) llm.Collaborator {
	chatModel := InitChatModel(t)
	if chatModel == nil {
		return nil
	}
	collab, err := llm.NewToolBasedCollaborator(chatModel, llm.WithTemperature(0))
	if err != nil {
		t.Fatalf("create collaborator: %v", err)
	}
	return collab
}

// NewTurn builds the request the tracker would send for a fresh session.
func NewTurn(input string) *types.TurnRequest {
	sess := types.NewSession("live")
	facts := types.FactsOf(&sess)
	return &types.TurnRequest{
		Now:     time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Stage:   sess.Stage,
		Facts:   facts,
		Missing: types.MissingFacts(sess.Stage, facts),
		Input:   input,
	}
}

func (c *Config) String() string {
	return fmt.Sprintf("Config{BaseURL:%q, Model:%q}", c.BaseURL, c.Model)
}
