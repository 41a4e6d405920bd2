package bot

const saveReply = "🎙️ 開始會議記錄模式！\n\n現在您可以：\n📝 發送文字訊息\n🎤 發送語音訊息\n\n所有內容都會累積顯示，輸入 /end 結束並儲存到 Google Sheets。"

const unsupportedReply = "📱 此會議記錄小幫手只處理文字和語音訊息。\n\n💡 支援功能：\n🎤 語音轉文字\n📝 文字記錄\n📊 Google Sheets 儲存\n\n輸入 /help 查看使用說明"

const helpReply = `📖 會議記錄小幫手使用說明：

🎙️ /save - 開始會議記錄模式
⏹️ /end - 結束記錄並儲存到 Google Sheets
📊 /status - 查看目前記錄狀態
🖼️ 傳送圖片 - AI 分析、產生摘要並存入 Notion
🔑 /auth_url - 重新取得 Google Drive 授權連結
📖 /help - 顯示此說明

💡 本機器人支援：
1. **會議記錄**：自動彙整文字與語音
2. **AI 圖片助手**：自動讀取圖片內容、產生摘要，並上傳至 Google Drive 與 Notion 存檔

💡 使用方式：
1. 輸入 /save 開始記錄
2. 發送語音或文字訊息
3. 所有內容會累積顯示
4. 輸入 /end 儲存到試算表

✨ 支援功能：
• 語音助理（使用 Groq Whisper API）
• 圖片助手（AI 讀圖、上傳 Drive、同步 Notion）
• AI 自動摘要與 Notion 同步
• 自動記錄到 Google Sheets (會議模式)
• 支援語音轉文字並立即回傳`
