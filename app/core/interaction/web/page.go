package web

const chatPage = `<!doctype html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>CalAgent</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 640px; margin: 2rem auto; padding: 0 1rem; }
#log { border: 1px solid #ccc; border-radius: 8px; min-height: 320px; padding: 1rem; overflow-y: auto; }
.msg { margin: 0.5rem 0; }
.user { text-align: right; color: #1a56a0; }
.agent { text-align: left; color: #222; }
form { display: flex; gap: 0.5rem; margin-top: 1rem; }
input[type=text] { flex: 1; padding: 0.5rem; }
button { padding: 0.5rem 1rem; }
</style>
</head>
<body>
<h2>CalAgent</h2>
<div id="log"></div>
<form id="chat">
<input type="text" id="text" placeholder="e.g. Schedule a meeting with Bob tomorrow at 3 PM" autocomplete="off">
<button type="submit">Send</button>
<button type="button" id="mic">&#127908;</button>
</form>
<script>
const log = document.getElementById('log');
function append(cls, text) {
  const div = document.createElement('div');
  div.className = 'msg ' + cls;
  div.textContent = text;
  log.appendChild(div);
  log.scrollTop = log.scrollHeight;
}
async function send(text) {
  append('user', text);
  const resp = await fetch('/chat', {
    method: 'POST',
    headers: {'Content-Type': 'application/json'},
    body: JSON.stringify({text})
  });
  const body = await resp.json();
  if (resp.status === 401) { window.location = body.login || '/login'; return; }
  append('agent', body.reply || body.error || 'something went wrong');
}
document.getElementById('chat').addEventListener('submit', e => {
  e.preventDefault();
  const input = document.getElementById('text');
  const text = input.value.trim();
  if (!text) return;
  input.value = '';
  send(text);
});
let recorder = null;
document.getElementById('mic').addEventListener('click', async () => {
  if (recorder && recorder.state === 'recording') { recorder.stop(); return; }
  const stream = await navigator.mediaDevices.getUserMedia({audio: true});
  recorder = new MediaRecorder(stream);
  const chunks = [];
  recorder.ondataavailable = e => chunks.push(e.data);
  recorder.onstop = async () => {
    stream.getTracks().forEach(t => t.stop());
    const form = new FormData();
    form.append('audio', new Blob(chunks, {type: 'audio/webm'}), 'voice.webm');
    const resp = await fetch('/transcribe', {method: 'POST', body: form});
    const body = await resp.json();
    if (body.text) send(body.text);
  };
  recorder.start();
});
</script>
</body>
</html>`

const linkedPage = `<!doctype html>
<html>
<head><meta charset="utf-8"><title>CalAgent</title></head>
<body style="font-family: system-ui, sans-serif; max-width: 480px; margin: 4rem auto;">
<h2>Account linked</h2>
<p>Your Google Calendar is connected. You can close this tab and go back to your chat.</p>
</body>
</html>`
