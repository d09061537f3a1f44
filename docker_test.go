package main_test

import (
	"os"
	"strings"
	"testing"
)

func readDockerfile(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile("Dockerfile")
	if err != nil {
		t.Fatalf("Dockerfileの読み込みに失敗した: %v", err)
	}
	return string(data)
}

func readCompose(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile("docker-compose.yml")
	if err != nil {
		t.Fatalf("docker-compose.ymlの読み込みに失敗した: %v", err)
	}
	return string(data)
}

// composeService はトップレベルのservicesから指定サービスのブロックを切り出す。
// 同じインデント深さの次のキーが現れるまでを1サービスとみなす。
func composeService(t *testing.T, content, name string) string {
	t.Helper()
	lines := strings.Split(content, "\n")
	var block []string
	inService := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == name+":" && strings.HasPrefix(line, "  ") && !strings.HasPrefix(line, "    ") {
			inService = true
			continue
		}
		if inService {
			// インデントが2以下に戻ったらサービスブロックの終わり
			if trimmed != "" && !strings.HasPrefix(line, "    ") && !strings.HasPrefix(trimmed, "#") {
				break
			}
			block = append(block, line)
		}
	}
	if !inService {
		t.Fatalf("docker-compose.ymlにサービス %q が定義されていない", name)
	}
	return strings.Join(block, "\n")
}

func TestDockerfile_MultiStageDistrolessBuild(t *testing.T) {
	content := readDockerfile(t)

	if !strings.Contains(content, "FROM golang:") {
		t.Error("ビルドステージ（FROM golang:）が定義されていない")
	}

	var lastFrom string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "FROM ") {
			lastFrom = trimmed
		}
	}
	if !strings.Contains(lastFrom, "distroless") {
		t.Errorf("実行ステージがdistrolessではない: %s", lastFrom)
	}
	if !strings.Contains(content, "CGO_ENABLED=0") {
		t.Error("distroless/staticで動かすためCGO_ENABLED=0でビルドすること")
	}
}

// distrolessにはシェルがないため、ヘルスチェックはシェル経由ではなく
// milkrunバイナリ自身のhealthcheckサブコマンドをexec形式で呼ぶ。
func TestDockerfile_HealthcheckUsesSubcommand(t *testing.T) {
	content := readDockerfile(t)

	if !strings.Contains(content, "HEALTHCHECK") {
		t.Fatal("HEALTHCHECKが定義されていない")
	}
	if !strings.Contains(content, `["/milkrun", "healthcheck"]`) {
		t.Error("ヘルスチェックがhealthcheckサブコマンドのexec形式になっていない")
	}
}

func TestDockerfile_EntrypointDefaultsToServe(t *testing.T) {
	content := readDockerfile(t)

	if !strings.Contains(content, `ENTRYPOINT ["/milkrun"]`) {
		t.Error("ENTRYPOINTがmilkrunバイナリになっていない")
	}
	if !strings.Contains(content, `CMD ["serve"]`) {
		t.Error("デフォルトコマンドがserveサブコマンドになっていない")
	}
}

func TestDockerCompose_APIService(t *testing.T) {
	api := composeService(t, readCompose(t), "api")

	if !strings.Contains(api, `command: ["serve"]`) {
		t.Error("apiサービスがserveサブコマンドで起動していない")
	}
	if !strings.Contains(api, "DATABASE_URL:") {
		t.Error("apiサービスにDATABASE_URLが設定されていない")
	}
	if !strings.Contains(api, "ADMIN_API_KEY:") {
		t.Error("apiサービスにADMIN_API_KEYが設定されていない")
	}
	if !strings.Contains(api, `"8080:8080"`) {
		t.Error("apiサービスがポート8080を公開していない")
	}
	if !strings.Contains(api, "service_healthy") {
		t.Error("apiサービスがdbのヘルスチェック完了を待っていない")
	}
}

func TestDockerCompose_WorkerService(t *testing.T) {
	worker := composeService(t, readCompose(t), "worker")

	if !strings.Contains(worker, `command: ["worker"]`) {
		t.Error("workerサービスがworkerサブコマンドで起動していない")
	}
	// バッチの判定日はコンテナのホスト時計ではなく営業タイムゾーンに固定する
	if !strings.Contains(worker, "BUSINESS_TIMEZONE: Asia/Tokyo") {
		t.Error("workerサービスにBUSINESS_TIMEZONEが設定されていない")
	}
	if !strings.Contains(worker, "BATCH_RUN_AT:") {
		t.Error("workerサービスに夜間バッチの起動時刻が設定されていない")
	}
	if strings.Contains(worker, `"8080:8080"`) {
		t.Error("workerサービスがAPIのポートを公開している")
	}
}

// バッチワーカーは外部通信を行わないため内部ネットワークのみに接続し、
// 外部向けネットワークはapiサービスだけが持つ。
func TestDockerCompose_WorkerStaysOnInternalNetwork(t *testing.T) {
	content := readCompose(t)

	if !strings.Contains(content, "internal: true") {
		t.Fatal("内部ネットワーク（internal: true）が定義されていない")
	}

	worker := composeService(t, content, "worker")
	if strings.Contains(worker, "- external") {
		t.Error("workerサービスが外部向けネットワークに接続されている")
	}

	api := composeService(t, content, "api")
	if !strings.Contains(api, "- external") {
		t.Error("apiサービスが外部向けネットワークに接続されていない")
	}
}

func TestDockerCompose_DatabaseService(t *testing.T) {
	db := composeService(t, readCompose(t), "db")

	if !strings.Contains(db, "image: postgres:") {
		t.Error("dbサービスがPostgreSQLイメージを使用していない")
	}
	if !strings.Contains(db, "pg_isready") {
		t.Error("dbサービスにpg_isreadyヘルスチェックが定義されていない")
	}
	if !strings.Contains(db, "pgdata:") {
		t.Error("dbサービスにデータ永続化ボリュームが設定されていない")
	}
}
